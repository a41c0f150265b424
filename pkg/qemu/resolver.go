/*

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package qemu

import (
	"fmt"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

// sourceObjects names the support objects resolved for one storage source
// layer. Empty fields mean the corresponding concern does not apply.
type sourceObjects struct {
	prManagerID    string
	authSecretID   string
	encSecretID    string
	cookieSecretID string
	tlsKeySecretID string
	tlsCredsID     string
}

// secretProps builds one secret object. Inline data rides wrapped under the
// machine master key when the binary supports it; file-backed secrets pass
// the path through.
func (b *builder) secretProps(id string, ref *vmdef.SecretRef) (*Props, error) {
	if !b.caps.Has(caps.SecretObject) {
		return nil, unsupportedf(ref.Alias, "secret objects not supported by this binary")
	}
	p := NewProps("secret", id)
	if ref.Path != "" {
		p.SetString("file", ref.Path)
		return p, nil
	}
	if ref.Data == "" {
		return nil, internalf("secret %q has neither data nor path", ref.Alias)
	}
	p.SetString("data", ref.Data)
	if b.vm.MasterKeyFile != "" && b.caps.Has(caps.SecretMasterKey) {
		if ref.IV == "" {
			return nil, internalf("secret %q: master-key wrapped data without iv", ref.Alias)
		}
		p.SetString("keyid", "masterKey0")
		p.SetString("iv", ref.IV)
	}
	p.SetString("format", "base64")
	return p, nil
}

func (b *builder) tlsCredsProps(id string, spec *vmdef.TLSSpec, keySecretID string) (*Props, error) {
	if !b.caps.Has(caps.TLSCredsX509) {
		return nil, unsupportedf("", "x509 TLS credentials not supported by this binary")
	}
	p := NewProps("tls-creds-x509", id)
	p.SetString("dir", spec.CredsDir)
	p.SetString("endpoint", "client")
	p.SetBool("verify-peer", true)
	if keySecretID != "" {
		p.SetString("passwordid", keySecretID)
	}
	return p, nil
}

// resolveSourceObjects emits the support objects one source layer needs, in
// the fixed order pr-manager, auth secret, encryption secret, cookie secret,
// TLS key secret, TLS credentials. Each object lands on the command line
// before anything that references it.
func (b *builder) resolveSourceObjects(driveAlias string, src *vmdef.StorageSource, layer int) ([]Fragment, *sourceObjects, error) {
	var frags []Fragment
	objs := &sourceObjects{}

	appendObject := func(p *Props) error {
		rendered, err := p.Render(b.caps)
		if err != nil {
			return err
		}
		frags = append(frags, Fragment{Flag: "-object", Value: rendered})
		return nil
	}

	if src.PRManagerPath != "" {
		if !b.caps.Has(caps.PRManagerHelper) {
			return nil, nil, unsupportedf(driveAlias, "persistent reservation manager not supported")
		}
		objs.prManagerID = fmt.Sprintf("pr-helper-%s-%d", driveAlias, layer)
		p := NewProps("pr-manager-helper", objs.prManagerID)
		p.SetString("path", src.PRManagerPath)
		if err := appendObject(p); err != nil {
			return nil, nil, err
		}
	}

	if src.Auth != nil {
		objs.authSecretID = fmt.Sprintf("%s-%d-auth-secret0", driveAlias, layer)
		p, err := b.secretProps(objs.authSecretID, src.Auth)
		if err != nil {
			return nil, nil, err
		}
		if err := appendObject(p); err != nil {
			return nil, nil, err
		}
	}

	if src.Encryption != nil {
		if src.Encryption.Format != "luks" {
			return nil, nil, unsupportedf(driveAlias, "encryption format %q not supported", src.Encryption.Format)
		}
		objs.encSecretID = fmt.Sprintf("%s-%d-luks-secret0", driveAlias, layer)
		p, err := b.secretProps(objs.encSecretID, &src.Encryption.Secret)
		if err != nil {
			return nil, nil, err
		}
		if err := appendObject(p); err != nil {
			return nil, nil, err
		}
	}

	if src.CookieSecret != nil {
		objs.cookieSecretID = fmt.Sprintf("%s-%d-httpcookie-secret0", driveAlias, layer)
		p, err := b.secretProps(objs.cookieSecretID, src.CookieSecret)
		if err != nil {
			return nil, nil, err
		}
		if err := appendObject(p); err != nil {
			return nil, nil, err
		}
	}

	if src.TLS != nil {
		if src.TLS.KeySecret != nil {
			objs.tlsKeySecretID = fmt.Sprintf("%s-%d-tlskey-secret0", driveAlias, layer)
			p, err := b.secretProps(objs.tlsKeySecretID, src.TLS.KeySecret)
			if err != nil {
				return nil, nil, err
			}
			if err := appendObject(p); err != nil {
				return nil, nil, err
			}
		}
		objs.tlsCredsID = fmt.Sprintf("%s-%d-tls-creds0", driveAlias, layer)
		p, err := b.tlsCredsProps(objs.tlsCredsID, src.TLS, objs.tlsKeySecretID)
		if err != nil {
			return nil, nil, err
		}
		if err := appendObject(p); err != nil {
			return nil, nil, err
		}
	}

	return frags, objs, nil
}

// storageSyntax is the backend syntax decision for one disk.
type storageSyntax int

const (
	syntaxDrive storageSyntax = iota
	syntaxBlockdev
)

// blockdevProtocols lists the source protocols expressible as -blockdev
// protocol nodes. Everything else keeps the legacy -drive syntax.
var blockdevProtocols = map[vmdef.StorageProtocol]bool{
	vmdef.ProtocolFile:  true,
	vmdef.ProtocolBlock: true,
	vmdef.ProtocolNBD:   true,
	vmdef.ProtocolRBD:   true,
	vmdef.ProtocolISCSI: true,
	vmdef.ProtocolHTTP:  true,
	vmdef.ProtocolHTTPS: true,
	vmdef.ProtocolSSH:   true,
}

// storageSyntaxFor decides between -drive and -blockdev. The decision is a
// table, not scattered conditionals:
//
//	binary without blockdev support  -> drive
//	LUN passthrough (SG_IO)          -> drive
//	per-disk throttling configured   -> drive
//	protocol not node-expressible    -> drive
//	otherwise                        -> blockdev
func (b *builder) storageSyntaxFor(d *vmdef.DiskDef) storageSyntax {
	switch {
	case !b.caps.Has(caps.Blockdev):
		return syntaxDrive
	case d.Device == vmdef.DiskDeviceLUN:
		return syntaxDrive
	case d.Throttle != nil:
		return syntaxDrive
	case !blockdevProtocols[d.Source.Protocol]:
		return syntaxDrive
	}
	return syntaxBlockdev
}

// nodeName returns the node-name of one chain layer, either the allocated
// one or a derived stable name.
func nodeName(driveAlias string, src *vmdef.StorageSource, layer int, role string) string {
	if src.NodeName != "" {
		if role == "format" {
			return src.NodeName
		}
		return src.NodeName + "-storage"
	}
	return fmt.Sprintf("%s-%d-%s", driveAlias, layer, role)
}

// protocolNode builds the protocol (access) node of one source layer.
func (b *builder) protocolNode(driveAlias string, src *vmdef.StorageSource, layer int, objs *sourceObjects) (*Props, error) {
	name := nodeName(driveAlias, src, layer, "storage")

	var p *Props
	switch src.Protocol {
	case vmdef.ProtocolFile:
		p = NewNodeProps("file", name)
		p.SetString("filename", src.Path)
		if objs.prManagerID != "" {
			p.SetString("pr-manager", objs.prManagerID)
		}
	case vmdef.ProtocolBlock:
		p = NewNodeProps("host_device", name)
		p.SetString("filename", src.Path)
		if objs.prManagerID != "" {
			p.SetString("pr-manager", objs.prManagerID)
		}
	case vmdef.ProtocolNBD:
		p = NewNodeProps("nbd", name)
		if len(src.Hosts) == 0 {
			return nil, internalf("disk %q: nbd source without a host", driveAlias)
		}
		server := &Props{}
		if src.Hosts[0].Port == 0 {
			server.SetString("type", "unix")
			server.SetString("path", src.Hosts[0].Host)
		} else {
			server.SetString("type", "inet")
			server.SetString("host", src.Hosts[0].Host)
			server.SetString("port", fmt.Sprintf("%d", src.Hosts[0].Port))
		}
		p.SetProps("server", server)
		if src.ExportName != "" {
			p.SetString("export", src.ExportName)
		}
		if objs.tlsCredsID != "" {
			p.SetString("tls-creds", objs.tlsCredsID)
		}
	case vmdef.ProtocolRBD:
		p = NewNodeProps("rbd", name)
		p.SetString("pool", src.Pool)
		p.SetString("image", src.ExportName)
		if len(src.Hosts) > 0 {
			hosts := make([]string, len(src.Hosts))
			for i, h := range src.Hosts {
				hosts[i] = fmt.Sprintf("%s:%d", h.Host, h.Port)
			}
			p.SetList("server", hosts)
		}
		if objs.authSecretID != "" {
			p.SetString("key-secret", objs.authSecretID)
			if src.Auth.Alias != "" {
				p.SetString("user", src.Auth.Alias)
			}
		}
	case vmdef.ProtocolISCSI:
		p = NewNodeProps("iscsi", name)
		if len(src.Hosts) == 0 {
			return nil, internalf("disk %q: iscsi source without a portal", driveAlias)
		}
		p.SetString("portal", fmt.Sprintf("%s:%d", src.Hosts[0].Host, src.Hosts[0].Port))
		p.SetString("target", src.ExportName)
		p.SetString("transport", "tcp")
		if objs.authSecretID != "" {
			p.SetString("user", src.Auth.Alias)
			p.SetString("password-secret", objs.authSecretID)
		}
	case vmdef.ProtocolHTTP, vmdef.ProtocolHTTPS:
		p = NewNodeProps(string(src.Protocol), name)
		p.SetString("url", src.URL)
		if objs.cookieSecretID != "" {
			p.SetString("cookie-secret", objs.cookieSecretID)
		}
		if src.Protocol == vmdef.ProtocolHTTPS && src.TLS != nil && src.TLS.Hostname != "" {
			p.SetString("sslverify", "on")
		}
	case vmdef.ProtocolSSH:
		p = NewNodeProps("ssh", name)
		p.SetString("path", src.Path)
		if len(src.Hosts) == 0 {
			return nil, internalf("disk %q: ssh source without a host", driveAlias)
		}
		server := &Props{}
		server.SetString("host", src.Hosts[0].Host)
		server.SetString("port", fmt.Sprintf("%d", src.Hosts[0].Port))
		p.SetProps("server", server)
		if src.SSHUser != "" {
			p.SetString("user", src.SSHUser)
		}
	default:
		return nil, enumErr("storage protocol", src.Protocol)
	}

	if src.ReadOnly {
		p.SetBool("read-only", true)
	}
	p.SetBool("auto-read-only", false)
	return p, nil
}

// formatNode builds the format node layered on top of a protocol node.
func (b *builder) formatNode(driveAlias string, src *vmdef.StorageSource, layer int, objs *sourceObjects, backing string) (*Props, error) {
	format := src.Format
	if format == "" {
		format = "raw"
	}
	// qcow2 carries its LUKS payload inside the format driver; raw images
	// become luks nodes outright.
	if src.Encryption != nil && format != "qcow2" {
		format = "luks"
	}

	p := NewNodeProps(format, nodeName(driveAlias, src, layer, "format"))
	p.SetString("file", nodeName(driveAlias, src, layer, "storage"))
	if objs.encSecretID != "" {
		if format == "qcow2" {
			enc := &Props{}
			enc.SetString("format", "luks")
			enc.SetString("key-secret", objs.encSecretID)
			p.SetProps("encrypt", enc)
		} else {
			p.SetString("key-secret", objs.encSecretID)
		}
	}
	if src.ReadOnly {
		p.SetBool("read-only", true)
	}
	if backing != "" {
		p.SetString("backing", backing)
	} else if format == "qcow2" {
		// Terminate probing so a stale backing reference inside the image
		// cannot widen the chain behind our back.
		p.SetNull("backing")
	}
	return p, nil
}

// resolveBlockdevChain walks the backing chain innermost first and emits,
// per layer, the support objects then the protocol and format nodes. It
// returns the node name the device fragment references.
func (b *builder) resolveBlockdevChain(d *vmdef.DiskDef, cache *cacheFlags) ([]Fragment, string, error) {
	driveAlias := d.DriveAlias
	var layers []*vmdef.StorageSource
	for src := d.Source; src != nil; src = src.BackingStore {
		layers = append(layers, src)
	}

	var frags []Fragment
	backing := ""
	// Innermost layer is the end of the chain; walk backwards.
	for i := len(layers) - 1; i >= 0; i-- {
		src := layers[i]
		objFrags, objs, err := b.resolveSourceObjects(driveAlias, src, i)
		if err != nil {
			return nil, "", err
		}
		frags = append(frags, objFrags...)

		proto, err := b.protocolNode(driveAlias, src, i, objs)
		if err != nil {
			return nil, "", err
		}
		format, err := b.formatNode(driveAlias, src, i, objs, backing)
		if err != nil {
			return nil, "", err
		}
		if d.Discard != "" {
			proto.SetString("discard", d.Discard)
		}
		if cache != nil {
			proto.SetProps("cache", nodeCacheProps(cache))
			format.SetProps("cache", nodeCacheProps(cache))
		}

		for _, node := range []*Props{proto, format} {
			rendered, err := node.RenderNode()
			if err != nil {
				return nil, "", err
			}
			frags = append(frags, Fragment{Flag: "-blockdev", Value: rendered})
		}
		backing = format.GetString("node-name")
	}
	return frags, backing, nil
}

func nodeCacheProps(cache *cacheFlags) *Props {
	p := &Props{}
	p.SetBool("direct", cache.direct)
	p.SetBool("no-flush", cache.noFlush)
	return p
}

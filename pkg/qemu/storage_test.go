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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

func TestCacheModeFlags(t *testing.T) {
	tests := []struct {
		mode vmdef.CacheMode
		want *cacheFlags
	}{
		{vmdef.CacheDefault, nil},
		{vmdef.CacheWriteBack, &cacheFlags{writeCache: true}},
		{vmdef.CacheNone, &cacheFlags{writeCache: true, direct: true}},
		{vmdef.CacheWriteThrough, &cacheFlags{}},
		{vmdef.CacheDirectSync, &cacheFlags{direct: true}},
		{vmdef.CacheUnsafe, &cacheFlags{writeCache: true, noFlush: true}},
	}
	for _, tc := range tests {
		got, err := cacheModeFlags(tc.mode)
		require.NoError(t, err, "mode %q", tc.mode)
		assert.Equal(t, tc.want, got, "mode %q", tc.mode)
	}

	_, err := cacheModeFlags("bogus")
	require.Error(t, err)
}

func TestStorageSyntaxFor(t *testing.T) {
	fileDisk := func() *vmdef.DiskDef {
		return &vmdef.DiskDef{
			Source: &vmdef.StorageSource{Protocol: vmdef.ProtocolFile, Path: "/a.img"},
		}
	}

	b := &builder{caps: caps.New()}
	assert.Equal(t, syntaxDrive, b.storageSyntaxFor(fileDisk()))

	b = &builder{caps: caps.New(caps.Blockdev)}
	assert.Equal(t, syntaxBlockdev, b.storageSyntaxFor(fileDisk()))

	lun := fileDisk()
	lun.Device = vmdef.DiskDeviceLUN
	assert.Equal(t, syntaxDrive, b.storageSyntaxFor(lun))

	throttled := fileDisk()
	throttled.Throttle = &vmdef.ThrottleLimits{TotalBytesSec: 1048576}
	assert.Equal(t, syntaxDrive, b.storageSyntaxFor(throttled))
}

func TestLegacyFileSpec(t *testing.T) {
	tests := []struct {
		name string
		src  *vmdef.StorageSource
		want string
	}{
		{
			"file",
			&vmdef.StorageSource{Protocol: vmdef.ProtocolFile, Path: "/vm/a.img"},
			"/vm/a.img",
		},
		{
			"nbd unix",
			&vmdef.StorageSource{
				Protocol:   vmdef.ProtocolNBD,
				Hosts:      []vmdef.HostPort{{Host: "/run/nbd.sock"}},
				ExportName: "vol0",
			},
			"nbd:unix:/run/nbd.sock:exportname=vol0",
		},
		{
			"nbd tcp",
			&vmdef.StorageSource{
				Protocol:   vmdef.ProtocolNBD,
				Hosts:      []vmdef.HostPort{{Host: "nbd.example.com", Port: 10809}},
				ExportName: "vol0",
			},
			"nbd:nbd.example.com:10809:exportname=vol0",
		},
		{
			"rbd",
			&vmdef.StorageSource{Protocol: vmdef.ProtocolRBD, Pool: "libvirt", ExportName: "image0"},
			"rbd:libvirt/image0",
		},
		{
			"iscsi",
			&vmdef.StorageSource{
				Protocol:   vmdef.ProtocolISCSI,
				Hosts:      []vmdef.HostPort{{Host: "portal.example.com", Port: 3260}},
				ExportName: "iqn.2013-07.com.example:iscsi/1",
			},
			"iscsi://portal.example.com:3260/iqn.2013-07.com.example:iscsi/1",
		},
		{
			"ssh",
			&vmdef.StorageSource{
				Protocol: vmdef.ProtocolSSH,
				Hosts:    []vmdef.HostPort{{Host: "backup.example.com", Port: 22}},
				SSHUser:  "qemu",
				Path:     "/images/a.img",
			},
			"ssh://qemu@backup.example.com:22/images/a.img",
		},
	}

	for _, tc := range tests {
		got, err := legacyFileSpec("drive0", tc.src)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	_, err := legacyFileSpec("drive0", &vmdef.StorageSource{Protocol: vmdef.ProtocolNBD})
	require.Error(t, err)
	assert.True(t, IsInternal(err))
}

func TestResolveSourceObjectsOrder(t *testing.T) {
	b := &builder{
		vm:   &vmdef.VMDef{Name: "testvm"},
		caps: caps.New(caps.SecretObject, caps.PRManagerHelper, caps.TLSCredsX509),
		cmd:  &Cmd{},
	}
	src := &vmdef.StorageSource{
		Protocol:      vmdef.ProtocolNBD,
		Hosts:         []vmdef.HostPort{{Host: "nbd.example.com", Port: 10809}},
		PRManagerPath: "/run/pr-helper.sock",
		Auth:          &vmdef.SecretRef{Alias: "admin", Path: "/etc/auth.secret"},
		Encryption: &vmdef.EncryptionSpec{
			Format: "luks",
			Secret: vmdef.SecretRef{Alias: "luks0", Path: "/etc/luks.secret"},
		},
		CookieSecret: &vmdef.SecretRef{Alias: "cookie", Path: "/etc/cookie.secret"},
		TLS: &vmdef.TLSSpec{
			CredsDir:  "/etc/pki/qemu",
			KeySecret: &vmdef.SecretRef{Alias: "tlskey", Path: "/etc/tlskey.secret"},
		},
	}

	frags, objs, err := b.resolveSourceObjects("drive0", src, 0)
	require.NoError(t, err)

	want := []string{
		"pr-manager-helper,id=pr-helper-drive0-0,path=/run/pr-helper.sock",
		"secret,id=drive0-0-auth-secret0,file=/etc/auth.secret",
		"secret,id=drive0-0-luks-secret0,file=/etc/luks.secret",
		"secret,id=drive0-0-httpcookie-secret0,file=/etc/cookie.secret",
		"secret,id=drive0-0-tlskey-secret0,file=/etc/tlskey.secret",
		"tls-creds-x509,id=drive0-0-tls-creds0,dir=/etc/pki/qemu,endpoint=client,verify-peer=on,passwordid=drive0-0-tlskey-secret0",
	}
	var got []string
	for _, f := range frags {
		require.Equal(t, "-object", f.Flag)
		got = append(got, f.Value)
	}
	assert.Equal(t, want, got)

	assert.Equal(t, "pr-helper-drive0-0", objs.prManagerID)
	assert.Equal(t, "drive0-0-auth-secret0", objs.authSecretID)
	assert.Equal(t, "drive0-0-luks-secret0", objs.encSecretID)
	assert.Equal(t, "drive0-0-httpcookie-secret0", objs.cookieSecretID)
	assert.Equal(t, "drive0-0-tlskey-secret0", objs.tlsKeySecretID)
	assert.Equal(t, "drive0-0-tls-creds0", objs.tlsCredsID)
}

func TestResolveSourceObjectsBadEncryption(t *testing.T) {
	b := &builder{vm: &vmdef.VMDef{Name: "testvm"}, caps: caps.Modern(), cmd: &Cmd{}}
	src := &vmdef.StorageSource{
		Protocol: vmdef.ProtocolFile,
		Path:     "/a.img",
		Encryption: &vmdef.EncryptionSpec{
			Format: "aes",
			Secret: vmdef.SecretRef{Alias: "enc0", Path: "/etc/enc.secret"},
		},
	}
	_, _, err := b.resolveSourceObjects("drive0", src, 0)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}

func TestResolveBlockdevChain(t *testing.T) {
	b := &builder{
		vm:   &vmdef.VMDef{Name: "testvm"},
		caps: caps.New(caps.Blockdev),
		br:   NewBroker(),
		cmd:  &Cmd{},
	}
	d := &vmdef.DiskDef{
		Info:       vmdef.DeviceInfo{Alias: "virtio-disk0"},
		Bus:        vmdef.DiskBusVirtio,
		DriveAlias: "drive0",
		Source: &vmdef.StorageSource{
			Protocol: vmdef.ProtocolFile,
			Path:     "/vm/top.qcow2",
			Format:   "qcow2",
			BackingStore: &vmdef.StorageSource{
				Protocol: vmdef.ProtocolFile,
				Path:     "/vm/base.raw",
				Format:   "raw",
			},
		},
	}

	frags, top, err := b.resolveBlockdevChain(d, nil)
	require.NoError(t, err)
	assert.Equal(t, "drive0-0-format", top)

	// The backing layer is attached first so the top layer can reference
	// it by node name.
	want := []string{
		`{"driver":"file","node-name":"drive0-1-storage","filename":"/vm/base.raw","auto-read-only":false}`,
		`{"driver":"raw","node-name":"drive0-1-format","file":"drive0-1-storage"}`,
		`{"driver":"file","node-name":"drive0-0-storage","filename":"/vm/top.qcow2","auto-read-only":false}`,
		`{"driver":"qcow2","node-name":"drive0-0-format","file":"drive0-0-storage","backing":"drive0-1-format"}`,
	}
	var got []string
	for _, f := range frags {
		require.Equal(t, "-blockdev", f.Flag)
		got = append(got, f.Value)
	}
	assert.Equal(t, want, got)
}

func TestResolveBlockdevChainTerminatesProbing(t *testing.T) {
	b := &builder{
		vm:   &vmdef.VMDef{Name: "testvm"},
		caps: caps.New(caps.Blockdev),
		br:   NewBroker(),
		cmd:  &Cmd{},
	}
	d := &vmdef.DiskDef{
		Info:       vmdef.DeviceInfo{Alias: "virtio-disk0"},
		Bus:        vmdef.DiskBusVirtio,
		DriveAlias: "drive0",
		Source: &vmdef.StorageSource{
			Protocol: vmdef.ProtocolFile,
			Path:     "/vm/single.qcow2",
			Format:   "qcow2",
		},
	}

	frags, top, err := b.resolveBlockdevChain(d, nil)
	require.NoError(t, err)
	assert.Equal(t, "drive0-0-format", top)
	require.Len(t, frags, 2)

	// A chain-ending qcow2 pins backing to null so the image's own
	// backing reference cannot widen the chain.
	assert.Equal(t,
		`{"driver":"qcow2","node-name":"drive0-0-format","file":"drive0-0-storage","backing":null}`,
		frags[1].Value)
}

func TestNodeNameAllocation(t *testing.T) {
	src := &vmdef.StorageSource{Protocol: vmdef.ProtocolFile, Path: "/a.img"}
	assert.Equal(t, "drive0-0-format", nodeName("drive0", src, 0, "format"))
	assert.Equal(t, "drive0-2-storage", nodeName("drive0", src, 2, "storage"))

	named := &vmdef.StorageSource{Protocol: vmdef.ProtocolFile, Path: "/a.img", NodeName: "mynode"}
	assert.Equal(t, "mynode", nodeName("drive0", named, 0, "format"))
	assert.Equal(t, "mynode-storage", nodeName("drive0", named, 0, "storage"))
}

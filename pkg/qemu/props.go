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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/virtforge/qargs/pkg/caps"
)

// valueKind tags the typed values a property tree can hold.
type valueKind int

const (
	valString valueKind = iota
	valUint
	valBool
	valProps
	valList
	valNull
)

// Value is one typed property value.
type Value struct {
	kind valueKind
	s    string
	u    uint64
	b    bool
	p    *Props
	l    []string
}

// Props is an ordered key/typed-value map describing one backend object
// (-object, -blockdev node, ...) before serialization. Insertion order is
// preserved because the legacy flat rendering is positionally sensitive.
type Props struct {
	entries []propEntry
}

type propEntry struct {
	key string
	val Value
}

// NewProps starts a tree with the two identifying keys every object needs.
func NewProps(qomType, id string) *Props {
	p := &Props{}
	p.SetString("qom-type", qomType)
	p.SetString("id", id)
	return p
}

// set replaces an existing key in place to keep its position, otherwise
// appends.
func (p *Props) set(key string, v Value) *Props {
	for i := range p.entries {
		if p.entries[i].key == key {
			p.entries[i].val = v
			return p
		}
	}
	p.entries = append(p.entries, propEntry{key: key, val: v})
	return p
}

func (p *Props) SetString(key, v string) *Props { return p.set(key, Value{kind: valString, s: v}) }
func (p *Props) SetUint(key string, v uint64) *Props {
	return p.set(key, Value{kind: valUint, u: v})
}
func (p *Props) SetBool(key string, v bool) *Props { return p.set(key, Value{kind: valBool, b: v}) }
func (p *Props) SetProps(key string, v *Props) *Props {
	return p.set(key, Value{kind: valProps, p: v})
}
func (p *Props) SetList(key string, v []string) *Props {
	return p.set(key, Value{kind: valList, l: v})
}

// SetNull sets an explicit JSON null. Only meaningful in the structured
// rendering; the flat form has no way to say it and drops the key.
func (p *Props) SetNull(key string) *Props { return p.set(key, Value{kind: valNull}) }

// NewNodeProps starts a -blockdev node tree. Block nodes identify by
// driver and node-name instead of qom-type and id.
func NewNodeProps(driver, nodeName string) *Props {
	p := &Props{}
	p.SetString("driver", driver)
	p.SetString("node-name", nodeName)
	return p
}

// GetString returns the string value for key, or "".
func (p *Props) GetString(key string) string {
	for i := range p.entries {
		if p.entries[i].key == key && p.entries[i].val.kind == valString {
			return p.entries[i].val.s
		}
	}
	return ""
}

// Len returns the number of keys in the tree.
func (p *Props) Len() int { return len(p.entries) }

// QOMType and ID return the identifying keys; both must be present before
// the tree may be rendered.
func (p *Props) QOMType() string { return p.GetString("qom-type") }
func (p *Props) ID() string      { return p.GetString("id") }

func (p *Props) checkIdentity() error {
	if p.QOMType() == "" {
		return internalf("property tree has no qom-type key")
	}
	if p.ID() == "" {
		return internalf("property tree %q has no id key", p.QOMType())
	}
	return nil
}

// RenderQAPI serializes the tree to the structured JSON argument form,
// preserving key order.
func (p *Props) RenderQAPI() (string, error) {
	if err := p.checkIdentity(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := p.renderJSON(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (p *Props) renderJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, e := range p.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		switch e.val.kind {
		case valString:
			s, err := json.Marshal(e.val.s)
			if err != nil {
				return err
			}
			buf.Write(s)
		case valUint:
			fmt.Fprintf(buf, "%d", e.val.u)
		case valBool:
			fmt.Fprintf(buf, "%t", e.val.b)
		case valProps:
			if err := e.val.p.renderJSON(buf); err != nil {
				return err
			}
		case valList:
			buf.WriteByte('[')
			for j, item := range e.val.l {
				if j > 0 {
					buf.WriteByte(',')
				}
				s, err := json.Marshal(item)
				if err != nil {
					return err
				}
				buf.Write(s)
			}
			buf.WriteByte(']')
		case valNull:
			buf.WriteString("null")
		default:
			return enumErr("property value kind", e.val.kind)
		}
	}
	buf.WriteByte('}')
	return nil
}

// RenderNode serializes a -blockdev node tree to JSON.
func (p *Props) RenderNode() (string, error) {
	if p.GetString("driver") == "" {
		return "", internalf("block node tree has no driver key")
	}
	if p.GetString("node-name") == "" {
		return "", internalf("block node tree %q has no node-name key", p.GetString("driver"))
	}
	var buf bytes.Buffer
	if err := p.renderJSON(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderLegacy serializes the tree in the flat comma form: the qom-type as
// the leading bare token, then key=value pairs in insertion order. Nested
// trees flatten to dotted key paths, lists to colon-joined elements, and
// every free-text value gets its commas escaped.
func (p *Props) RenderLegacy() (string, error) {
	if err := p.checkIdentity(); err != nil {
		return "", err
	}
	var parts []string
	parts = append(parts, p.QOMType())
	if err := p.renderFlat("", &parts, true); err != nil {
		return "", err
	}
	return strings.Join(parts, ","), nil
}

func (p *Props) renderFlat(prefix string, parts *[]string, skipType bool) error {
	for _, e := range p.entries {
		if skipType && prefix == "" && e.key == "qom-type" {
			continue
		}
		key := e.key
		if prefix != "" {
			key = prefix + "." + e.key
		}
		switch e.val.kind {
		case valString:
			*parts = append(*parts, fmt.Sprintf("%s=%s", key, EscapeCommas(e.val.s)))
		case valUint:
			*parts = append(*parts, fmt.Sprintf("%s=%d", key, e.val.u))
		case valBool:
			*parts = append(*parts, fmt.Sprintf("%s=%s", key, onOff(e.val.b)))
		case valProps:
			if err := e.val.p.renderFlat(key, parts, false); err != nil {
				return err
			}
		case valList:
			escaped := make([]string, len(e.val.l))
			for i, item := range e.val.l {
				escaped[i] = EscapeCommas(item)
			}
			*parts = append(*parts, fmt.Sprintf("%s=%s", key, strings.Join(escaped, ":")))
		case valNull:
			// Inexpressible in the flat grammar.
		default:
			return enumErr("property value kind", e.val.kind)
		}
	}
	return nil
}

// Render picks the wire form from the binary's capabilities.
func (p *Props) Render(c caps.Caps) (string, error) {
	if c.Has(caps.ObjectQAPI) {
		return p.RenderQAPI()
	}
	return p.RenderLegacy()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

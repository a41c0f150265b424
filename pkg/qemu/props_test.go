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
)

func TestPropsRenderQAPIOrder(t *testing.T) {
	p := NewProps("memory-backend-file", "pc.ram")
	p.SetUint("size", 2147483648)
	p.SetString("mem-path", "/dev/hugepages")
	p.SetBool("share", true)

	out, err := p.RenderQAPI()
	require.NoError(t, err)
	assert.Equal(t, `{"qom-type":"memory-backend-file","id":"pc.ram","size":2147483648,"mem-path":"/dev/hugepages","share":true}`, out)
}

func TestPropsSetReplacesInPlace(t *testing.T) {
	p := NewProps("secret", "sec0")
	p.SetString("format", "raw")
	p.SetString("file", "/tmp/a")
	p.SetString("format", "base64")

	out, err := p.RenderQAPI()
	require.NoError(t, err)
	assert.Equal(t, `{"qom-type":"secret","id":"sec0","format":"base64","file":"/tmp/a"}`, out)
}

func TestPropsRenderLegacy(t *testing.T) {
	p := NewProps("memory-backend-ram", "pc.ram")
	p.SetUint("size", 1073741824)
	p.SetBool("prealloc", true)
	p.SetBool("share", false)

	out, err := p.RenderLegacy()
	require.NoError(t, err)
	assert.Equal(t, "memory-backend-ram,id=pc.ram,size=1073741824,prealloc=on,share=off", out)
}

func TestPropsRenderLegacyNested(t *testing.T) {
	cache := &Props{}
	cache.SetBool("direct", true)
	cache.SetBool("no-flush", false)

	p := NewProps("iothread", "io0")
	p.SetProps("cache", cache)

	out, err := p.RenderLegacy()
	require.NoError(t, err)
	assert.Equal(t, "iothread,id=io0,cache.direct=on,cache.no-flush=off", out)
}

func TestPropsRenderLegacyList(t *testing.T) {
	p := NewProps("tls-creds-x509", "tls0")
	p.SetList("endpoint", []string{"client", "a,b"})

	out, err := p.RenderLegacy()
	require.NoError(t, err)
	assert.Equal(t, "tls-creds-x509,id=tls0,endpoint=client:a,,b", out)
}

func TestPropsRenderLegacyEscapesCommas(t *testing.T) {
	p := NewProps("secret", "sec0")
	p.SetString("file", "/tmp/with,comma")

	out, err := p.RenderLegacy()
	require.NoError(t, err)
	assert.Equal(t, "secret,id=sec0,file=/tmp/with,,comma", out)
}

func TestPropsNull(t *testing.T) {
	p := NewProps("throttle-group", "tg0")
	p.SetNull("limits")

	qapi, err := p.RenderQAPI()
	require.NoError(t, err)
	assert.Equal(t, `{"qom-type":"throttle-group","id":"tg0","limits":null}`, qapi)

	flat, err := p.RenderLegacy()
	require.NoError(t, err)
	assert.Equal(t, "throttle-group,id=tg0", flat)
}

func TestPropsMissingIdentity(t *testing.T) {
	p := &Props{}
	p.SetString("size", "1024")

	_, err := p.RenderQAPI()
	require.Error(t, err)
	assert.True(t, IsInternal(err))

	p = &Props{}
	p.SetString("qom-type", "secret")
	_, err = p.RenderLegacy()
	require.Error(t, err)
	assert.True(t, IsInternal(err))
}

func TestPropsRenderNode(t *testing.T) {
	p := NewNodeProps("file", "drive0-0-storage")
	p.SetString("filename", "/vm/disk.qcow2")
	p.SetBool("read-only", false)

	out, err := p.RenderNode()
	require.NoError(t, err)
	assert.Equal(t, `{"driver":"file","node-name":"drive0-0-storage","filename":"/vm/disk.qcow2","read-only":false}`, out)

	bad := &Props{}
	bad.SetString("node-name", "n0")
	_, err = bad.RenderNode()
	require.Error(t, err)
	assert.True(t, IsInternal(err))
}

func TestPropsRenderByCaps(t *testing.T) {
	p := NewProps("memory-backend-ram", "pc.ram")
	p.SetUint("size", 1048576)

	modern, err := p.Render(caps.New(caps.ObjectQAPI))
	require.NoError(t, err)
	assert.Equal(t, `{"qom-type":"memory-backend-ram","id":"pc.ram","size":1048576}`, modern)

	legacy, err := p.Render(caps.New())
	require.NoError(t, err)
	assert.Equal(t, "memory-backend-ram,id=pc.ram,size=1048576", legacy)
}

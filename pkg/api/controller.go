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
package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/coreos/go-systemd/activation"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/virtforge/qargs/pkg/caps"
	"github.com/virtforge/qargs/pkg/vmdef"
)

type Controller struct {
	Config     *DaemonConfig
	Router     *gin.Engine
	Server     *http.Server
	wgShutDown *sync.WaitGroup

	defLock sync.Mutex
	defs    map[string]*vmdef.VMDef

	capsLock     sync.Mutex
	capsByBinary map[string]caps.Caps
}

func NewController(config *DaemonConfig) *Controller {
	var controller Controller

	controller.Config = config
	controller.wgShutDown = new(sync.WaitGroup)
	controller.defs = make(map[string]*vmdef.VMDef)
	controller.capsByBinary = make(map[string]caps.Caps)

	return &controller
}

// loadDefinitions reads the saved definitions from the config directory.
func (c *Controller) loadDefinitions() error {
	defDir := filepath.Join(c.Config.ConfigDirectory, "definitions")
	if !PathExists(defDir) {
		return nil
	}
	log.Infof("Loading saved VM definitions...")
	entries, err := os.ReadDir(defDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		def, err := vmdef.LoadDef(filepath.Join(defDir, e.Name()))
		if err != nil {
			log.Warnf("Skipping definition %q: %s", e.Name(), err)
			continue
		}
		log.Infof("  loaded definition %s", def.Name)
		c.defs[def.Name] = def
	}
	return nil
}

// apiListener returns the serving socket: the descriptor systemd handed us
// through socket activation when available, otherwise a fresh unix socket.
func (c *Controller) apiListener() (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err == nil && len(listeners) > 0 && listeners[0] != nil {
		log.Infof("qargsd using systemd-activated socket")
		return listeners[0], nil
	}

	unixSocket := APISocketPath()
	if len(unixSocket) == 0 {
		panic("Failed to get an API Socket path")
	}
	if err := os.MkdirAll(filepath.Dir(unixSocket), 0755); err != nil {
		return nil, err
	}
	if PathExists(unixSocket) {
		os.Remove(unixSocket)
	}
	log.Infof("qargsd service running on: %s", unixSocket)
	return net.Listen("unix", unixSocket)
}

func (c *Controller) Run(ctx context.Context) error {
	if err := c.loadDefinitions(); err != nil {
		return err
	}

	engine := gin.Default()
	c.Router = engine

	_ = NewRouteHandler(c)

	listener, err := c.apiListener()
	if err != nil {
		return err
	}
	defer listener.Close()

	c.Server = &http.Server{Handler: c.Router.Handler()}

	return c.Server.Serve(listener)
}

func (c *Controller) Shutdown(ctx context.Context) error {
	c.wgShutDown.Wait()
	if err := c.Server.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// capsFor returns the probed capability set of a binary, probing at most
// once per daemon lifetime.
func (c *Controller) capsFor(binary string) (caps.Caps, error) {
	if binary == "" {
		binary = c.Config.DefaultBinary
	}
	c.capsLock.Lock()
	defer c.capsLock.Unlock()
	if cached, ok := c.capsByBinary[binary]; ok {
		return cached, nil
	}
	probed, err := caps.Probe(binary)
	if err != nil {
		return caps.Caps{}, err
	}
	c.capsByBinary[binary] = probed
	return probed, nil
}

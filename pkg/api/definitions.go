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
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/virtforge/qargs/pkg/vmdef"
)

func (c *Controller) definitionPath(name string) string {
	return filepath.Join(c.Config.ConfigDirectory, "definitions", name+".yaml")
}

// GetDefinitions lists the stored definitions sorted by name.
func (c *Controller) GetDefinitions() []*vmdef.VMDef {
	c.defLock.Lock()
	defer c.defLock.Unlock()

	defs := make([]*vmdef.VMDef, 0, len(c.defs))
	for _, def := range c.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (c *Controller) GetDefinition(name string) (*vmdef.VMDef, error) {
	c.defLock.Lock()
	defer c.defLock.Unlock()

	def, ok := c.defs[name]
	if !ok {
		return nil, errors.Errorf("No definition named %q", name)
	}
	return def, nil
}

// AddDefinition validates, persists and registers a new definition. An
// existing definition of the same name is only replaced when update is set.
func (c *Controller) AddDefinition(def *vmdef.VMDef, update bool) error {
	if def.Name == "" {
		return errors.Errorf("Definition has no name")
	}
	if err := def.Validate(); err != nil {
		return errors.Wrapf(err, "Invalid definition %q", def.Name)
	}
	if err := def.EnsureUUID(); err != nil {
		return errors.Wrapf(err, "Failed to assign a UUID to %q", def.Name)
	}

	c.defLock.Lock()
	defer c.defLock.Unlock()

	if _, ok := c.defs[def.Name]; ok && !update {
		return errors.Errorf("Definition %q already exists", def.Name)
	}

	path := c.definitionPath(def.Name)
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "Failed to create definitions directory")
	}
	if err := def.Save(path); err != nil {
		return errors.Wrapf(err, "Failed to save definition %q", def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

func (c *Controller) DeleteDefinition(name string) error {
	c.defLock.Lock()
	defer c.defLock.Unlock()

	if _, ok := c.defs[name]; !ok {
		return errors.Errorf("No definition named %q", name)
	}
	if err := os.Remove(c.definitionPath(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "Failed to remove definition %q", name)
	}
	delete(c.defs, name)
	return nil
}

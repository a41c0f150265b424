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
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/virtforge/qargs/pkg/qemu"
	"github.com/virtforge/qargs/pkg/vmdef"
)

type RouteHandler struct {
	c *Controller
}

func NewRouteHandler(c *Controller) *RouteHandler {
	routeHandler := &RouteHandler{c: c}
	routeHandler.SetupRoutes()

	return routeHandler
}

func (rh *RouteHandler) SetupRoutes() {
	rh.c.Router.GET("/capabilities", rh.GetCapabilities)
	rh.c.Router.POST("/synthesize", rh.Synthesize)
	rh.c.Router.GET("/definitions", rh.GetDefinitions)
	rh.c.Router.POST("/definitions", rh.PostDefinition)
	rh.c.Router.GET("/definitions/:defname", rh.GetDefinition)
	rh.c.Router.PUT("/definitions/:defname", rh.UpdateDefinition)
	rh.c.Router.DELETE("/definitions/:defname", rh.DeleteDefinition)
	rh.c.Router.POST("/definitions/:defname/synthesize", rh.SynthesizeDefinition)
}

// synthStatus maps a generation failure onto an HTTP status. A defect in
// the definition pipeline is the daemon's fault, a capability mismatch or
// a bad enum value is the caller's, and a descriptor acquisition failure
// is the host's.
func synthStatus(err error) int {
	switch {
	case qemu.IsUnsupported(err):
		return http.StatusUnprocessableEntity
	case qemu.IsResource(err):
		return http.StatusBadGateway
	case qemu.IsInternal(err):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (rh *RouteHandler) GetCapabilities(ctx *gin.Context) {
	binary := ctx.Query("binary")
	capSet, err := rh.c.capsFor(binary)
	if err != nil {
		log.Errorf("Failed to probe binary '%s': %s\n", binary, err)
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if binary == "" {
		binary = rh.c.Config.DefaultBinary
	}
	ctx.IndentedJSON(http.StatusOK, CapabilitiesResponse{Binary: binary, Flags: capSet.Names()})
}

func (rh *RouteHandler) Synthesize(ctx *gin.Context) {
	var request SynthesizeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := rh.c.synthesize(ctx.Request.Context(), &request)
	if err != nil {
		log.Errorf("Failed to synthesize command for '%s': %s\n", request.Definition.Name, err)
		ctx.JSON(synthStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.IndentedJSON(http.StatusOK, resp)
}

// SynthesizeDefinition runs synthesis against a stored definition. The
// request body carries only the binary or capability override.
func (rh *RouteHandler) SynthesizeDefinition(ctx *gin.Context) {
	defName := ctx.Param("defname")
	def, err := rh.c.GetDefinition(defName)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var request SynthesizeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	request.Definition = *def
	resp, err := rh.c.synthesize(ctx.Request.Context(), &request)
	if err != nil {
		log.Errorf("Failed to synthesize command for '%s': %s\n", defName, err)
		ctx.JSON(synthStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.IndentedJSON(http.StatusOK, resp)
}

func (rh *RouteHandler) GetDefinitions(ctx *gin.Context) {
	ctx.IndentedJSON(http.StatusOK, rh.c.GetDefinitions())
}

func (rh *RouteHandler) GetDefinition(ctx *gin.Context) {
	defName := ctx.Param("defname")
	def, err := rh.c.GetDefinition(defName)
	if err != nil {
		log.Errorf("Failed to get definition '%s': %s\n", defName, err)
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctx.IndentedJSON(http.StatusOK, def)
}

func (rh *RouteHandler) PostDefinition(ctx *gin.Context) {
	var newDef vmdef.VMDef
	if err := ctx.BindJSON(&newDef); err != nil {
		return
	}
	if err := rh.c.AddDefinition(&newDef, false); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (rh *RouteHandler) UpdateDefinition(ctx *gin.Context) {
	var newDef vmdef.VMDef
	if err := ctx.ShouldBindJSON(&newDef); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	newDef.Name = ctx.Param("defname")
	if err := rh.c.AddDefinition(&newDef, true); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (rh *RouteHandler) DeleteDefinition(ctx *gin.Context) {
	defName := ctx.Param("defname")
	if err := rh.c.DeleteDefinition(defName); err != nil {
		log.Errorf("Failed to delete definition '%s': %s\n", defName, err)
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	}
}

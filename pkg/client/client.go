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

// Package client talks to a running qargsd over its unix socket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/virtforge/qargs/pkg/api"
	"github.com/virtforge/qargs/pkg/vmdef"
)

var rootclient *resty.Client

func init() {
	// configure the http client to point to the unix socket
	apiSocket := api.APISocketPath()
	if len(apiSocket) == 0 {
		panic("Failed to get API socket path")
	}

	unixDial := func(_ context.Context, network, addr string) (net.Conn, error) {
		raddr, err := net.ResolveUnixAddr("unix", apiSocket)
		if err != nil {
			return nil, err
		}

		return net.DialUnix("unix", nil, raddr)
	}

	transport := http.Transport{
		DialContext:           unixDial,
		DisableKeepAlives:     true,
		ExpectContinueTimeout: time.Second * 30,
		ResponseHeaderTimeout: time.Second * 3600,
		TLSHandshakeTimeout:   time.Second * 5,
	}

	rootclient = resty.New()
	rootclient.SetTransport(&transport).SetScheme("http").SetBaseURL(apiSocket)
}

func GetCapabilities(binary string) (api.CapabilitiesResponse, error) {
	capResp := api.CapabilitiesResponse{}
	capsURL := api.GetAPIURL("capabilities")
	if len(capsURL) == 0 {
		return capResp, fmt.Errorf("Failed to get API URL for 'capabilities' endpoint")
	}
	if binary != "" {
		capsURL = capsURL + "?binary=" + url.QueryEscape(binary)
	}
	resp, _ := rootclient.R().EnableTrace().Get(capsURL)
	err := json.Unmarshal(resp.Body(), &capResp)
	if err != nil {
		return capResp, fmt.Errorf("%d: Failed to unmarshal GET on /capabilities", resp.StatusCode())
	}
	return capResp, nil
}

func Synthesize(request api.SynthesizeRequest) (api.SynthesizeResponse, error) {
	synthResp := api.SynthesizeResponse{}
	synthURL := api.GetAPIURL("synthesize")
	if len(synthURL) == 0 {
		return synthResp, fmt.Errorf("Failed to get API URL for 'synthesize' endpoint")
	}
	resp, err := rootclient.R().EnableTrace().SetBody(request).Post(synthURL)
	if err != nil {
		return synthResp, fmt.Errorf("Failed POST to 'synthesize' endpoint: %s", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return synthResp, apiError(resp)
	}
	if err := json.Unmarshal(resp.Body(), &synthResp); err != nil {
		return synthResp, fmt.Errorf("%d: Failed to unmarshal POST on /synthesize", resp.StatusCode())
	}
	return synthResp, nil
}

func SynthesizeDefinition(defName string, request api.SynthesizeRequest) (api.SynthesizeResponse, error) {
	synthResp := api.SynthesizeResponse{}
	synthURL := api.GetAPIURL(filepath.Join("definitions", defName, "synthesize"))
	if len(synthURL) == 0 {
		return synthResp, fmt.Errorf("Failed to get API URL for 'definitions/%s/synthesize' endpoint", defName)
	}
	resp, err := rootclient.R().EnableTrace().SetBody(request).Post(synthURL)
	if err != nil {
		return synthResp, fmt.Errorf("Failed POST to 'definitions/%s/synthesize' endpoint: %s", defName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return synthResp, apiError(resp)
	}
	if err := json.Unmarshal(resp.Body(), &synthResp); err != nil {
		return synthResp, fmt.Errorf("%d: Failed to unmarshal POST on /definitions/%s/synthesize", resp.StatusCode(), defName)
	}
	return synthResp, nil
}

func GetDefinitions() ([]vmdef.VMDef, error) {
	defs := []vmdef.VMDef{}
	listURL := api.GetAPIURL("definitions")
	if len(listURL) == 0 {
		return defs, fmt.Errorf("Failed to get API URL for 'definitions' endpoint")
	}
	resp, _ := rootclient.R().EnableTrace().Get(listURL)
	err := json.Unmarshal(resp.Body(), &defs)
	if err != nil {
		return defs, fmt.Errorf("Failed to unmarshal GET on /definitions")
	}
	return defs, nil
}

func GetDefinition(defName string) (vmdef.VMDef, int, error) {
	def := vmdef.VMDef{}
	getURL := api.GetAPIURL(filepath.Join("definitions", defName))
	if len(getURL) == 0 {
		return def, http.StatusBadRequest, fmt.Errorf("Failed to get API URL for 'definitions/%s' endpoint", defName)
	}
	resp, _ := rootclient.R().EnableTrace().Get(getURL)
	err := json.Unmarshal(resp.Body(), &def)
	if err != nil {
		return def, resp.StatusCode(), fmt.Errorf("%d: Failed to unmarshal GET on /definitions/%s", resp.StatusCode(), defName)
	}
	return def, resp.StatusCode(), nil
}

func PostDefinition(newDef vmdef.VMDef) error {
	postURL := api.GetAPIURL("definitions")
	if len(postURL) == 0 {
		return fmt.Errorf("Failed to get API URL for 'definitions' endpoint")
	}
	resp, err := rootclient.R().EnableTrace().SetBody(newDef).Post(postURL)
	if err != nil {
		return fmt.Errorf("Failed POST to 'definitions' endpoint: %s", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func PutDefinition(newDef vmdef.VMDef) error {
	putURL := api.GetAPIURL(filepath.Join("definitions", newDef.Name))
	if len(putURL) == 0 {
		return fmt.Errorf("Failed to get API PUT URL for 'definitions' endpoint")
	}
	resp, err := rootclient.R().EnableTrace().SetBody(newDef).Put(putURL)
	if err != nil {
		return fmt.Errorf("Failed PUT to definition '%s' endpoint: %s", newDef.Name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func DeleteDefinition(defName string) error {
	deleteURL := api.GetAPIURL(filepath.Join("definitions", defName))
	if len(deleteURL) == 0 {
		return fmt.Errorf("Failed to get API DELETE URL for 'definitions/%s' endpoint", defName)
	}
	resp, err := rootclient.R().EnableTrace().Delete(deleteURL)
	if err != nil {
		return fmt.Errorf("Failed DELETE to definition '%s' endpoint: %s", defName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// apiError extracts the daemon's error field from a non-OK response.
func apiError(resp *resty.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("%d: %s", resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("%d: %s", resp.StatusCode(), resp.Status())
}

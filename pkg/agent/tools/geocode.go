package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
)

// GeocodeTool resolves street addresses to coordinates via the Census
// Bureau geocoder.
type GeocodeTool struct {
	BaseTool
	baseURL string
	client  *http.Client
}

// NewGeocodeTool creates the geocoding tool.
func NewGeocodeTool(baseURL string, timeout time.Duration) *GeocodeTool {
	return &GeocodeTool{
		BaseTool: NewBaseTool("geocode_address",
			"Resolve a Milwaukee street address to longitude/latitude coordinates"),
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *GeocodeTool) Declaration() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"address": {Type: "string", Description: "Street address, e.g. '809 N Broadway'"},
			"city":    {Type: "string", Description: "City, defaults to Milwaukee"},
			"state":   {Type: "string", Description: "State, defaults to WI"},
		},
		Required: []string{"address"},
	}
}

type geocodeResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

func (g *GeocodeTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	address := stringArg(args, "address")
	if address == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "address is required", nil)
	}
	city := stringArg(args, "city")
	if city == "" {
		city = "Milwaukee"
	}
	state := stringArg(args, "state")
	if state == "" {
		state = "WI"
	}

	q := url.Values{}
	q.Set("address", fmt.Sprintf("%s, %s, %s", address, city, state))
	q.Set("benchmark", "Public_AR_Current")
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/locations/onelineaddress?"+q.Encode(), nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution, "failed to build geocoder request", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution, "geocoder request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution,
			fmt.Sprintf("geocoder returned status %d", resp.StatusCode), nil)
	}

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution, "failed to decode geocoder response", err)
	}

	if len(decoded.Result.AddressMatches) == 0 {
		// A clean miss, not a failure: the model should ask the user to
		// verify the address.
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("no match found for address %q", address),
		}, nil
	}

	match := decoded.Result.AddressMatches[0]
	return map[string]any{
		"success": true,
		"coordinates": map[string]any{
			"lng": match.Coordinates.X,
			"lat": match.Coordinates.Y,
		},
		"formattedAddress": match.MatchedAddress,
	}, nil
}

// Succeeded requires resolved coordinates, not just a well-formed reply.
func (g *GeocodeTool) Succeeded(result map[string]any) bool {
	_, ok := result["coordinates"]
	return ok
}

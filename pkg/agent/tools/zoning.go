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

const gisUnavailableSuggestion = "The city zoning map service is currently unreachable. " +
	"You can look up the district manually on the Milwaukee zoning map at " +
	"https://city.milwaukee.gov/DCD/Planning/Zoning, or retry shortly."

// ZoningTool finds the zoning district and overlay zones at a coordinate
// using the city's ArcGIS map services.
type ZoningTool struct {
	BaseTool
	baseURL string
	client  *http.Client
}

// NewZoningTool creates the spatial zoning lookup tool.
func NewZoningTool(baseURL string, timeout time.Duration) *ZoningTool {
	return &ZoningTool{
		BaseTool: NewBaseTool("lookup_zoning",
			"Find the zoning district and any overlay zones at a longitude/latitude point"),
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (z *ZoningTool) Declaration() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"lng": {Type: "number", Description: "Longitude (WGS84)"},
			"lat": {Type: "number", Description: "Latitude (WGS84)"},
		},
		Required: []string{"lng", "lat"},
	}
}

type arcgisQueryResponse struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (z *ZoningTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	lng, okLng := floatArg(args, "lng")
	lat, okLat := floatArg(args, "lat")
	if !okLng || !okLat {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "lng and lat are required", nil)
	}

	district, err := z.queryLayer(ctx, "zoning/MapServer/0", lng, lat)
	if err != nil {
		// Expected failure mode: the GIS service goes down. Hand the model
		// actionable guidance instead of a bare error.
		return map[string]any{
			"success":    false,
			"error":      err.Error(),
			"suggestion": gisUnavailableSuggestion,
		}, nil
	}
	if district == "" {
		return map[string]any{
			"success": false,
			"error":   "no zoning district found at this location; it may be outside Milwaukee city limits",
		}, nil
	}

	overlays, err := z.queryOverlays(ctx, lng, lat)
	if err != nil {
		// The base district is still useful on its own.
		overlays = nil
	}

	return map[string]any{
		"success":        true,
		"zoningDistrict": district,
		"overlayZones":   overlays,
	}, nil
}

// Succeeded requires a resolved district.
func (z *ZoningTool) Succeeded(result map[string]any) bool {
	_, ok := result["zoningDistrict"]
	return ok
}

func (z *ZoningTool) queryLayer(ctx context.Context, layer string, lng, lat float64) (string, error) {
	attrs, err := z.query(ctx, layer, lng, lat)
	if err != nil {
		return "", err
	}
	for _, a := range attrs {
		for _, key := range []string{"ZONING", "ZONING_1", "DISTRICT"} {
			if v, ok := a[key].(string); ok && v != "" {
				return v, nil
			}
		}
	}
	return "", nil
}

func (z *ZoningTool) queryOverlays(ctx context.Context, lng, lat float64) ([]string, error) {
	attrs, err := z.query(ctx, "zoning/MapServer/1", lng, lat)
	if err != nil {
		return nil, err
	}
	var overlays []string
	for _, a := range attrs {
		for _, key := range []string{"OVERLAY", "NAME"} {
			if v, ok := a[key].(string); ok && v != "" {
				overlays = append(overlays, v)
				break
			}
		}
	}
	return overlays, nil
}

func (z *ZoningTool) query(ctx context.Context, layer string, lng, lat float64) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("geometry", fmt.Sprintf("%f,%f", lng, lat))
	q.Set("geometryType", "esriGeometryPoint")
	q.Set("inSR", "4326")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("outFields", "*")
	q.Set("returnGeometry", "false")
	q.Set("f", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s/query?%s", z.baseURL, layer, q.Encode()), nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution, "failed to build GIS request", err)
	}

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution, "GIS request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution,
			fmt.Sprintf("GIS service returned status %d", resp.StatusCode), nil)
	}

	var decoded arcgisQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution, "failed to decode GIS response", err)
	}
	if decoded.Error != nil {
		return nil, apperrors.New(apperrors.ErrCodeToolExecution,
			fmt.Sprintf("GIS service error: %s", decoded.Error.Message), nil)
	}

	attrs := make([]map[string]any, 0, len(decoded.Features))
	for _, f := range decoded.Features {
		attrs = append(attrs, f.Attributes)
	}
	return attrs, nil
}

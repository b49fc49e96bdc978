package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// WeatherOptions configures the weather tool.
type WeatherOptions struct {
	// BaseURL of an OpenWeather-compatible current weather endpoint.
	BaseURL string
	// Units is "metric", "imperial" or "standard".
	Units string
	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// WeatherTool fetches current weather for a city from an
// OpenWeather-compatible HTTP API.
type WeatherTool struct {
	apiKey string
	opts   WeatherOptions
}

// NewWeatherTool constructs a weather tool with the given API key.
func NewWeatherTool(apiKey string, optFns ...func(o *WeatherOptions)) *WeatherTool {
	opts := WeatherOptions{
		BaseURL: "https://api.openweathermap.org/data/2.5/weather",
		Units:   "metric",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &WeatherTool{apiKey: apiKey, opts: opts}
}

// Name implements Tool.
func (t *WeatherTool) Name() string { return "get_weather" }

// Description implements Tool.
func (t *WeatherTool) Description() string {
	return "Fetch the current weather for a city"
}

// Parameters implements Tool.
func (t *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "City name, e.g. Lisbon",
			},
		},
		"required": []string{"city"},
	}
}

// Privileged implements Tool.
func (t *WeatherTool) Privileged() bool { return false }

// weatherResponse mirrors the subset of the OpenWeather current weather
// payload the tool reports.
type weatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Call implements Tool.
func (t *WeatherTool) Call(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
	city, _ := args["city"].(string)

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", t.apiKey)
	q.Set("units", t.opts.Units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.opts.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var payload weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	description := ""
	if len(payload.Weather) > 0 {
		description = payload.Weather[0].Description
	}

	return map[string]any{
		"city":        payload.Name,
		"temperature": payload.Main.Temp,
		"humidity":    payload.Main.Humidity,
		"description": description,
		"units":       t.opts.Units,
	}, nil
}

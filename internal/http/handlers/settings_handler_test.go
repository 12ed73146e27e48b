package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

type settingView struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Kind    string `json:"kind"`
	Default string `json:"default"`
}

func TestSettingsList(t *testing.T) {
	r, _ := buildTestRouter(t)

	w, env := doRequest(t, r, http.MethodGet, "/api/merge/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d", w.Code)
	}
	var views []settingView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(views) != 14 {
		t.Fatalf("want 14 settings, got %d", len(views))
	}
	if views[0].Key != "max_pickup_distance_km" || views[0].Value != "7" || views[0].Default != "7" {
		t.Fatalf("unexpected first setting: %+v", views[0])
	}
}

func TestSettingsUpdate(t *testing.T) {
	r, _ := buildTestRouter(t)

	w, env := doRequest(t, r, http.MethodPut, "/api/merge/settings/max_pickup_distance_km", map[string]any{"value": "5.5"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d body=%s", w.Code, w.Body.String())
	}
	var v settingView
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if v.Value != "5.5" || v.Default != "7" {
		t.Fatalf("unexpected setting: %+v", v)
	}
}

func TestSettingsUpdateRejects(t *testing.T) {
	r, _ := buildTestRouter(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"unknown key", "/api/merge/settings/nope", map[string]any{"value": "1"}},
		{"missing value", "/api/merge/settings/max_group_size", map[string]any{}},
		{"bad number", "/api/merge/settings/max_pickup_distance_km", map[string]any{"value": "far"}},
		{"bad bool", "/api/merge/settings/auto_merge_enabled", map[string]any{"value": "maybe"}},
		{"group size zero", "/api/merge/settings/max_group_size", map[string]any{"value": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doRequest(t, r, http.MethodPut, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: want 400, got %d body=%s", w.Code, w.Body.String())
			}
			if env.Error == nil || env.Error.Kind != "validation_error" {
				t.Fatalf("unexpected envelope: %s", w.Body.String())
			}
		})
	}
}

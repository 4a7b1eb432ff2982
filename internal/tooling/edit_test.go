package tooling

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestEditDefinitionsAreOpenAIFunctions(t *testing.T) {
	defs := EditTools()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions", len(defs))
	}
	sheet := defs[1]
	if sheet.Type != "function" || sheet.Function.Name != EditSheetName {
		t.Fatalf("definition = %+v", sheet)
	}
	params := sheet.Function.Parameters
	if params["type"] != "object" {
		t.Fatalf("parameters type = %v", params["type"])
	}
	props, _ := params["properties"].(map[string]any)
	for _, key := range []string{"sheetId", "cell", "value"} {
		if _, ok := props[key]; !ok {
			t.Fatalf("missing property %s in %v", key, props)
		}
	}
	required, _ := params["required"].([]any)
	if len(required) != 3 {
		t.Fatalf("required = %v", params["required"])
	}
}

func TestParseEditSheet(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"valid", map[string]any{"sheetId": "1", "cell": "C3", "value": "7"}, ""},
		{"numeric value", map[string]any{"sheetId": "1", "cell": "aa10", "value": 7.5}, ""},
		{"missing id", map[string]any{"cell": "C3", "value": "7"}, "sheetId is required"},
		{"bad cell", map[string]any{"sheetId": "1", "cell": "3C", "value": "7"}, "must look like A1"},
		{"missing value", map[string]any{"sheetId": "1", "cell": "C3"}, "value is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEditSheet(tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryCallAcknowledges(t *testing.T) {
	reg := NewEditRegistry()
	out, err := reg.Call(context.Background(), EditDocName, `{"docId":"42","text":"hello"}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var ack struct {
		Status string      `json:"status"`
		Tool   string      `json:"tool"`
		Args   EditDocArgs `json:"args"`
	}
	if err := json.Unmarshal([]byte(out), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != "deferred" || ack.Tool != EditDocName || ack.Args.DocID != "42" {
		t.Fatalf("ack = %+v", ack)
	}

	if _, err := reg.Call(context.Background(), EditDocName, `{"docId":`); err == nil {
		t.Fatalf("expected error for malformed arguments")
	}
	if _, err := reg.Call(context.Background(), "rm_rf", `{}`); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}

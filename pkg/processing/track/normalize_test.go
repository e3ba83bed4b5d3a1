//nolint:funlen // ok for tests
package track

import (
	"testing"
	"time"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

func TestNormalizePositions(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	type args struct {
		data map[string]interface{}
	}
	tests := []struct {
		name string
		args args
		want map[string]*model.Position
	}{
		{
			name: "nil frame",
			args: args{data: nil},
			want: nil,
		},
		{
			name: "frame without position collection",
			args: args{data: map[string]interface{}{"Heartbeat": "2025"}},
			want: nil,
		},
		{
			name: "position collection of wrong type",
			args: args{data: map[string]interface{}{"Position": "bogus"}},
			want: nil,
		},
		{
			name: "empty position collection",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{},
			}},
			want: map[string]*model.Position{},
		},
		{
			name: "valid entry with all axes",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{
					"1": map[string]interface{}{"X": 100.5, "Y": -42.0, "Z": 3.25},
				},
			}},
			want: map[string]*model.Position{
				"1": {X: 100.5, Y: -42.0, Z: 3.25, Status: model.StatusActive, Timestamp: now},
			},
		},
		{
			name: "numeric strings are parsed",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{
					"16": map[string]interface{}{"X": "12.5", "Y": "7", "Status": "OnTrack"},
				},
			}},
			want: map[string]*model.Position{
				"16": {X: 12.5, Y: 7, Z: 0, Status: "OnTrack", Timestamp: now},
			},
		},
		{
			name: "missing Y excludes the entry",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{
					"1": map[string]interface{}{"X": 1.0},
					"2": map[string]interface{}{"X": 2.0, "Y": 2.0},
				},
			}},
			want: map[string]*model.Position{
				"2": {X: 2, Y: 2, Status: model.StatusActive, Timestamp: now},
			},
		},
		{
			name: "unparsable X excludes the entry",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{
					"1": map[string]interface{}{"X": "garbage", "Y": 1.0},
				},
			}},
			want: map[string]*model.Position{},
		},
		{
			name: "unparsable Z falls back to zero",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{
					"44": map[string]interface{}{"X": 5.0, "Y": 6.0, "Z": "n/a"},
				},
			}},
			want: map[string]*model.Position{
				"44": {X: 5, Y: 6, Z: 0, Status: model.StatusActive, Timestamp: now},
			},
		},
		{
			name: "entry of wrong type is skipped",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{
					"1": "not-a-map",
					"2": map[string]interface{}{"X": 1.0, "Y": 1.0},
				},
			}},
			want: map[string]*model.Position{
				"2": {X: 1, Y: 1, Status: model.StatusActive, Timestamp: now},
			},
		},
		{
			name: "integer values from lenient parsers",
			args: args{data: map[string]interface{}{
				"Position": map[string]interface{}{
					"7": map[string]interface{}{"X": int64(3), "Y": int64(4), "Z": int64(1)},
				},
			}},
			want: map[string]*model.Position{
				"7": {X: 3, Y: 4, Z: 1, Status: model.StatusActive, Timestamp: now},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePositions(tt.args.data, now)
			if tt.want == nil {
				if got != nil {
					t.Errorf("normalizePositions() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("normalizePositions() = nil, want %v", tt.want)
			}
			if len(got) != len(tt.want) {
				t.Errorf("normalizePositions() has %d entries, want %d", len(got), len(tt.want))
			}
			for vehicleID, want := range tt.want {
				gotPos, ok := got[vehicleID]
				if !ok {
					t.Errorf("normalizePositions() missing vehicle %s", vehicleID)
					continue
				}
				if *gotPos != *want {
					t.Errorf("normalizePositions()[%s] = %+v, want %+v", vehicleID, *gotPos, *want)
				}
			}
		})
	}
}

package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadConfig(t *testing.T) {
	seed := int64(3)
	testCases := map[string]struct {
		yaml     string
		expected *config
		err      bool
	}{
		"Empty": {
			yaml:     "",
			expected: defaultConfig(),
		},
		"Full": {
			yaml: `
resolution: 0.5
adapt_bounding_box: true
bounding_box:
  min: [0, 0, 0]
  max: [8, 8, 4]
out_of_core:
  directory: /tmp/leaves
  write_buffer_max: 100
  page_cache_bytes: 1048576
  seed: 3
  compress: true
log_level: debug
`,
			expected: &config{
				Resolution:       0.5,
				AdaptBoundingBox: true,
				BoundingBox:      &boundingBox{Min: []float32{0, 0, 0}, Max: []float32{8, 8, 4}},
				OutOfCore: outOfCore{
					Directory:      "/tmp/leaves",
					WriteBufferMax: 100,
					PageCacheBytes: 1048576,
					Seed:           &seed,
					Compress:       true,
				},
				LogLevel: "debug",
			},
		},
		"UnknownKey":         {yaml: "resolutoin: 0.5\n", err: true},
		"NegativeResolution": {yaml: "resolution: -1\n", err: true},
		"ShortBoundingBox":   {yaml: "bounding_box: {min: [0, 0], max: [1, 1, 1]}\n", err: true},
		"ZeroWriteBuffer":    {yaml: "out_of_core: {write_buffer_max: 0}\n", err: true},
		"InvalidLogLevel":    {yaml: "log_level: verbose\n", err: true},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			c, err := readConfig(strings.NewReader(tt.yaml))
			if tt.err {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.expected, c); diff != "" {
				t.Errorf("Config differs (-expected +got):\n%s", diff)
			}
		})
	}
}

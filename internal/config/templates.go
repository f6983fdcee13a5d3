package config

import (
	"fmt"
	"os"
	"path/filepath"
)

func Template() string {
	return template
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const template = `[device]
id = "edge-01"
addr = ":9400"
# 0 = low resource, 1 = high resource
context = 0
# optional resolver table file; empty uses the built-in mapping
table = ""
cors_origins = ["http://localhost:3000"]
# shared token required on /v1/frames; empty disables the check
auth_token = ""

[bench]
iterations = 100000
duration = "1s"
payload = "model_weights_v2_data_payload_test"
output = "results/benchmark_results.json"
`

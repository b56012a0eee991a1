package config

import (
	"fmt"
	"os"
)

// defaultYAML is the commented starter config written by `jive config init`.
const defaultYAML = `# jive server configuration.
# Every key can also be set through the environment with a JIVE_ prefix,
# e.g. JIVE_SERVER_PORT=8080.

server:
  host: 0.0.0.0
  port: 3454
  log_level: INFO        # DEBUG, INFO, WARNING, ERROR, CRITICAL
  log_dir: logs

database:
  data_path: data
  embedding_model: local-hash-v1   # or azure-openai (see embedding.azure)

namespace:
  default: default
  auto_create: true

security:
  cors_origins: ["*"]
  rate_limit_rps: 10
  rate_limit_burst: 20

backup:
  enabled: false
  # dir defaults to <data_path>/backups
  retention: 7
  schedule: "0 3 * * *"

sync:
  # dir defaults to <data_path>/sync
  format: json           # json, yaml, markdown, csv
  watch: false

# Per-tool deadlines in seconds.
tools:
  jive_execute_work_item:
    timeout_seconds: 300
  jive_sync_data:
    timeout_seconds: 120

# Required only when database.embedding_model is azure-openai.
embedding:
  azure:
    endpoint: ""
    api_key: ""
    deployment: ""
`

// WriteDefault writes the starter config to path, refusing to overwrite an
// existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.WriteFile(path, []byte(defaultYAML), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

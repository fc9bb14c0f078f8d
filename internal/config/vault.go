package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// resolveVault fetches the field behind a ${VAULT:path#field} reference.
// The client is configured from VAULT_ADDR and VAULT_TOKEN; KV v2 mounts
// nest the payload under a "data" key, which is unwrapped transparently.
func resolveVault(ref string) (string, error) {
	path, field, ok := strings.Cut(ref, "#")
	if !ok || path == "" || field == "" {
		return "", fmt.Errorf("malformed Vault reference %q: want path#field", ref)
	}

	addr := os.Getenv("VAULT_ADDR")
	token := os.Getenv("VAULT_TOKEN")
	if addr == "" || token == "" {
		return "", fmt.Errorf("resolving %q: VAULT_ADDR and VAULT_TOKEN must be set", ref)
	}

	vc := api.DefaultConfig()
	vc.Address = addr

	client, err := api.NewClient(vc)
	if err != nil {
		return "", fmt.Errorf("building Vault client: %w", err)
	}
	client.SetToken(token)

	secret, err := client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("reading Vault path %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret at Vault path %s", path)
	}

	payload := secret.Data
	if nested, ok := payload["data"].(map[string]any); ok {
		payload = nested
	}

	v, ok := payload[field].(string)
	if !ok {
		return "", fmt.Errorf("Vault secret %s has no string field %q", path, field)
	}
	return v, nil
}

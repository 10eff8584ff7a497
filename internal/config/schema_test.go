package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_DescribesTopLevelConfigFields(t *testing.T) {
	schema := Schema()
	require.NotNil(t, schema)
	require.NotNil(t, schema.Properties)

	for _, field := range []string{"logging", "database", "metrics", "api", "blob_store", "upload", "optimization", "cleanup", "url_fetch"} {
		_, ok := schema.Properties.Get(field)
		assert.True(t, ok, "expected schema to describe field %q", field)
	}
}

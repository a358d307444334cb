package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckParameterForInjection(t *testing.T) {
	clean := []string{
		"",
		"Sami Miettinen",
		"Vinícius Júnior",
		"Real Madrid Castilla",
		"2024-01-15",
		"Delantero",
		"https://es.besoccer.com/jugador/sami-miettinen-123456",
	}
	for _, v := range clean {
		assert.Nil(t, CheckParameterForInjection("q", v), "value %q", v)
	}

	attacks := []string{
		"' OR '1'='1",
		"'; DROP TABLE users--",
		"1 UNION SELECT * FROM passwords",
		"admin'--",
		"' OR 1=1--",
		"1' AND SLEEP(5)--",
	}
	for _, v := range attacks {
		result := CheckParameterForInjection("q", v)
		require.NotNil(t, result, "value %q", v)
		assert.True(t, result.IsSQLi)
		assert.Equal(t, "q", result.ParamName)
		assert.Equal(t, v, result.ParamValue)
		assert.NotEmpty(t, result.Fingerprint)
	}
}

func TestCheckAllParameters(t *testing.T) {
	assert.Empty(t, CheckAllParameters(map[string]string{
		"q":    "Miettinen",
		"team": "Rovaniemi",
	}))

	results := CheckAllParameters(map[string]string{
		"q":    "Miettinen",
		"team": "'; DROP TABLE users--",
	})
	require.Len(t, results, 1)
	assert.Equal(t, "team", results[0].ParamName)
}

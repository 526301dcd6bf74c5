package workflow

import (
	"fmt"
	"math/rand"
	"testing"

	"comfygate/internal/graph"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func testDescriptor() *Descriptor {
	return &Descriptor{
		Name:   "upscale",
		Prefix: "/upscale",
		ConfigurableNodes: []string{"3", "7"},
		Params: map[string]map[string]*ParamSchema{
			"3": {
				"prompt": {Type: TypeText, Required: true},
				"seed":   {Type: TypeNumber, Default: float64(-1), Min: f64(-1)},
				"steps":  {Type: TypeNumber, Default: float64(20), Min: f64(1), Max: f64(100)},
			},
			"7": {
				"scale":   {Type: TypeNumber, Default: float64(2), Aliases: []string{"x"}},
				"method":  {Type: TypeSelect, Default: "lanczos", Options: []string{"lanczos", "nearest"}},
				"tiled":   {Type: TypeBoolean, Default: false},
				"denoise": {Type: TypeNumber, Required: true, Min: f64(0), Max: f64(1)},
			},
		},
		Graph: graph.Graph{
			"3": {ClassType: "KSampler", Inputs: map[string]interface{}{}},
			"7": {ClassType: "Upscale", Inputs: map[string]interface{}{}},
		},
	}
}

func TestParseArgs(t *testing.T) {
	d := testDescriptor()

	params, err := d.ParseArgs("a castle on a hill steps:30 x:4 method:nearest tiled:true")
	require.NoError(t, err)

	assert.Equal(t, "a castle on a hill", params["3"]["prompt"])
	assert.Equal(t, "30", params["3"]["steps"])
	assert.Equal(t, "4", params["7"]["scale"]) // alias x resolves to scale
	assert.Equal(t, "nearest", params["7"]["method"])
	assert.Equal(t, "true", params["7"]["tiled"])
}

func TestParseArgsKeysAreCaseInsensitive(t *testing.T) {
	d := testDescriptor()

	params, err := d.ParseArgs("STEPS:15 Method:lanczos")
	require.NoError(t, err)
	assert.Equal(t, "15", params["3"]["steps"])
	assert.Equal(t, "lanczos", params["7"]["method"])
}

func TestParseArgsUnknownKeyBecomesPromptText(t *testing.T) {
	d := testDescriptor()

	params, err := d.ParseArgs("portrait of:a:wizard steps:10")
	require.NoError(t, err)
	// "of:a:wizard" matches no parameter, so it stays prompt text.
	assert.Equal(t, "portrait of:a:wizard", params["3"]["prompt"])
	assert.Equal(t, "10", params["3"]["steps"])
}

func TestParseArgsFreeTextWithoutPromptSlotFails(t *testing.T) {
	d := testDescriptor()
	delete(d.Params["3"], "prompt")

	_, err := d.ParseArgs("stray words steps:10")
	assert.Error(t, err)
}

func TestParseArgsValueMayContainColons(t *testing.T) {
	d := testDescriptor()

	params, err := d.ParseArgs("prompt:city:night")
	require.NoError(t, err)
	assert.Equal(t, "city:night", params["3"]["prompt"])
}

func TestProperty_ParseArgsOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	d := testDescriptor()

	properties.Property("shuffled key:value tokens parse to the same map", prop.ForAll(
		func(steps, scale int, seed int64) bool {
			tokens := []string{
				fmt.Sprintf("steps:%d", steps),
				fmt.Sprintf("x:%d", scale),
				"method:nearest",
				"tiled:true",
				"denoise:0.5",
			}

			base, err := d.ParseArgs(joinTokens(tokens))
			if err != nil {
				return false
			}

			rng := rand.New(rand.NewSource(seed))
			shuffled := append([]string(nil), tokens...)
			rng.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			got, err := d.ParseArgs(joinTokens(shuffled))
			if err != nil {
				return false
			}
			return assert.ObjectsAreEqual(base, got)
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 8),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func joinTokens(tokens []string) string {
	out := ""
	for i, tok := range tokens {
		if i > 0 {
			out += " "
		}
		out += tok
	}
	return out
}

func TestValidateParams(t *testing.T) {
	d := testDescriptor()

	tests := []struct {
		name     string
		params   map[string]map[string]interface{}
		problems int
	}{
		{
			name: "all valid",
			params: map[string]map[string]interface{}{
				"3": {"prompt": "hello", "steps": "30"},
				"7": {"denoise": "0.4"},
			},
			problems: 0,
		},
		{
			name: "missing required",
			params: map[string]map[string]interface{}{
				"3": {"prompt": "hello"},
			},
			problems: 1, // denoise required with no default
		},
		{
			name: "out of range and wrong type",
			params: map[string]map[string]interface{}{
				"3": {"prompt": "hello", "steps": "500"},
				"7": {"denoise": "not-a-number"},
			},
			problems: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ValidateParams(tt.params)
			if tt.problems == 0 {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Len(t, ve.Problems, tt.problems)
		})
	}
}

func TestValidateParamsMissingPromptIsRequired(t *testing.T) {
	d := testDescriptor()

	err := d.ValidateParams(map[string]map[string]interface{}{
		"7": {"denoise": "0.4"},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 1)
}

package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateProbe_CH_CommaDecimalVAT_P9(t *testing.T) {
	resp := `{"vat_percent":"8,1%","plug":["J","C"],"emergency":["112","117"]}`
	result := EvaluateProbe("CH", resp)

	require.True(t, result.Pass)
	require.Equal(t, "8.1%", result.NormalizedVAT)
	require.ElementsMatch(t, []string{"J", "C"}, result.NormalizedPlugs)
	require.Contains(t, result.NormalizedEmergency, "112")
	require.Equal(t, ConfidenceFullMatch, result.Confidence)
}

func TestEvaluateProbe_US_NoFederalVATSynonyms_P9(t *testing.T) {
	resp := `{"vat":"no federal VAT","plug":"A/B","emergency":"911"}`
	result := EvaluateProbe("US", resp)

	require.True(t, result.Pass)
	require.Equal(t, "no federal VAT", result.NormalizedVAT)
	require.ElementsMatch(t, []string{"A", "B"}, result.NormalizedPlugs)
	require.Contains(t, result.NormalizedEmergency, "911")
}

func TestEvaluateProbe_CodeFenceWrappedJSON_P9(t *testing.T) {
	resp := "Here is the data:\n```json\n{\"vat\": \"19%\", \"plug\": [\"F\", \"C\"], \"emergency\": [\"112\"]}\n```\nLet me know if you need more."
	result := EvaluateProbe("DE", resp)

	require.True(t, result.Pass)
	require.Equal(t, ConfidenceFullMatch, result.Confidence)
}

func TestEvaluateProbe_GB_EitherEmergencyNumberAccepted(t *testing.T) {
	resp1 := `{"vat":"20%","plug":"G","emergency":"999"}`
	resp2 := `{"vat":"20%","plug":"G","emergency":"112"}`

	require.True(t, EvaluateProbe("GB", resp1).Pass)
	require.True(t, EvaluateProbe("GB", resp2).Pass)
}

func TestEvaluateProbe_SG_EitherEmergencyNumberAccepted(t *testing.T) {
	require.True(t, EvaluateProbe("SG", `{"vat":"9%","plug":"G","emergency":"999"}`).Pass)
	require.True(t, EvaluateProbe("SG", `{"vat":"9%","plug":"G","emergency":"995"}`).Pass)
}

func TestEvaluateProbe_PlugSubsetOfMultiple(t *testing.T) {
	resp := `{"vat":"20%","plug":["E"],"emergency":["112"]}`
	result := EvaluateProbe("FR", resp)
	require.True(t, result.Pass)
}

func TestEvaluateProbe_PlugOutsideAllowedSetFails(t *testing.T) {
	resp := `{"vat":"19%","plug":["A"],"emergency":["112"]}`
	result := EvaluateProbe("DE", resp)
	require.False(t, result.PlugPass)
	require.False(t, result.Pass)
}

func TestEvaluateProbe_VATPrefixesStripped(t *testing.T) {
	resp := `{"vat":"TVA: 20%","plug":"E","emergency":"112"}`
	result := EvaluateProbe("FR", resp)
	require.Equal(t, "20%", result.NormalizedVAT)
	require.True(t, result.VATPass)
}

func TestEvaluateProbe_PlugWithDescriptivePrefix(t *testing.T) {
	resp := `{"vat":"19%","plug":"Schuko","emergency":"112"}`
	result := EvaluateProbe("DE", resp)
	require.Contains(t, result.NormalizedPlugs, "F")
	require.True(t, result.Pass)
}

func TestEvaluateProbe_NoJSONFound(t *testing.T) {
	result := EvaluateProbe("DE", "I don't have that information.")
	require.Equal(t, ConfidenceFailed, result.Confidence)
	require.False(t, result.Pass)
	require.NotEmpty(t, result.Reason)
}

func TestEvaluateProbe_UnknownCountry(t *testing.T) {
	result := EvaluateProbe("ZZ", `{"vat":"1%"}`)
	require.Equal(t, ConfidenceFailed, result.Confidence)
}

func TestEvaluateProbe_PartialMatch(t *testing.T) {
	resp := `{"vat":"19%","plug":["A"],"emergency":["999"]}`
	result := EvaluateProbe("DE", resp)
	require.True(t, result.VATPass)
	require.False(t, result.PlugPass)
	require.False(t, result.EmergencyPass)
	require.Equal(t, ConfidencePartial, result.Confidence)
	require.False(t, result.Pass)
}

func TestEvaluateProbe_EmergencyOrderOfFirstAppearance(t *testing.T) {
	resp := `{"vat":"19%","plug":["F"],"emergency":"Call 112 or 110 if needed"}`
	result := EvaluateProbe("DE", resp)
	require.Equal(t, []string{"112", "110"}, result.NormalizedEmergency)
}

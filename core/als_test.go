package core

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestBuildALS_LengthBudget_P7(t *testing.T) {
	for _, country := range SupportedALSCountries() {
		block, err := BuildALS(country)
		require.NoError(t, err)
		require.NotNil(t, block)
		require.LessOrEqualf(t, utf8.RuneCountInString(block.Text), ALSMaxChars,
			"ALS block for %s exceeds budget", country)
	}
}

func TestBuildALS_SentinelNoneHasNoBlock(t *testing.T) {
	block, err := BuildALS(ALSSentinelNone)
	require.NoError(t, err)
	require.Nil(t, block)
}

func TestBuildALS_UnsupportedCountry(t *testing.T) {
	_, err := BuildALS("ZZ")
	require.Error(t, err)
	var coreErr *Error
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, KindValidation, coreErr.Kind)
}

func TestBuildALS_ForbidsCountryNames(t *testing.T) {
	forbidden := map[string][]string{
		"DE": {"Germany", "Deutschland"},
		"US": {"United States", "America"},
		"FR": {"France"},
		"GB": {"United Kingdom", "England"},
	}
	for country, names := range forbidden {
		block, err := BuildALS(country)
		require.NoError(t, err)
		for _, name := range names {
			require.NotContains(t, strings.ToLower(block.Text), strings.ToLower(name))
		}
	}
}

func TestCombineSystemInstructions_PrecedenceOrder(t *testing.T) {
	combined := CombineSystemInstructions("Be a pirate.", true)
	require.True(t, strings.HasPrefix(combined, "Be a pirate."))
	require.True(t, strings.HasSuffix(combined, SystemInstructionALS))

	onlyALS := CombineSystemInstructions("", true)
	require.Equal(t, SystemInstructionALS, onlyALS)

	noALS := CombineSystemInstructions("Be a pirate.", false)
	require.Equal(t, "Be a pirate.", noALS)
}

func TestDetectLeak_TrigramEcho_P8(t *testing.T) {
	block, err := BuildALS("US")
	require.NoError(t, err)

	response := "Here is your answer. By the way, please have your ZIP code ready for verification."
	report := DetectLeak("US", block, response)
	require.True(t, report.LeakDetected)
}

func TestDetectLeak_NoLeak(t *testing.T) {
	block, err := BuildALS("US")
	require.NoError(t, err)

	response := "The brand occupies a strong position in the category."
	report := DetectLeak("US", block, response)
	require.False(t, report.LeakDetected)
}

func TestDetectLeak_CountryNameEcho(t *testing.T) {
	report := DetectLeak("DE", nil, "Based on context clues, this appears to be Germany.")
	require.True(t, report.LeakDetected)
}

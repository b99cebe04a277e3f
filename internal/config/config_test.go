package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.cfg")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesBasicTokens(t *testing.T) {
	path := writeTempConfig(t, `
PROCESSOR_CLK_MULTIPLIER 4
ROBSIZE 128
MAX_RETIRE 2
MAX_FETCH 4
PIPELINEDEPTH 5
NUM_CHANNELS 1
NUM_RANKS 2
NUM_BANKS 8
NUM_ROWS 32768
NUM_COLUMNS 128
CACHE_LINE_SIZE 64
ADDRESS_BITS 32
`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.ProcessorClkMultiplier != 4 {
		t.Errorf("ProcessorClkMultiplier = %d, want 4", p.ProcessorClkMultiplier)
	}
	if p.ROBSize != 128 {
		t.Errorf("ROBSize = %d, want 128", p.ROBSize)
	}
	if p.NumRanks != 2 || p.NumBanks != 8 {
		t.Errorf("NumRanks/NumBanks = %d/%d, want 2/8", p.NumRanks, p.NumBanks)
	}
}

func TestTimingTokensAreScaledByClkMultiplierAtTimeOfRead(t *testing.T) {
	path := writeTempConfig(t, `
PROCESSOR_CLK_MULTIPLIER 4
T_RCD 44
T_RP 44
`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.TRCD != 176 {
		t.Errorf("TRCD = %d, want 176 (44*4)", p.TRCD)
	}
	if p.TRP != 176 {
		t.Errorf("TRP = %d, want 176 (44*4)", p.TRP)
	}
}

func TestTimingTokenBeforeMultiplierIsUnscaled(t *testing.T) {
	path := writeTempConfig(t, `
T_RCD 44
PROCESSOR_CLK_MULTIPLIER 4
`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.TRCD != 44 {
		t.Errorf("TRCD = %d, want 44 (multiplier not yet set)", p.TRCD)
	}
}

func TestCommentsAreIgnored(t *testing.T) {
	path := writeTempConfig(t, `
// this is a comment line
NUM_CHANNELS 2 // a trailing comment after the value is skipped
`)
	// The trailing "//" above sits where the next token would start, so
	// it is skipped to end of line like a whole-line comment; only a
	// token-position "//" is a recognized comment (a "//" in a value
	// position would be read as the value), matching tokenize()'s own
	// comment_token check.
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.NumChannels != 2 {
		t.Errorf("NumChannels = %d, want 2", p.NumChannels)
	}
}

func TestUnknownTokenIsAConfigError(t *testing.T) {
	path := writeTempConfig(t, `BOGUS_TOKEN 1`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown token")
	}
	ce, ok := err.(ConfigError)
	if !ok {
		t.Fatalf("error type = %T, want ConfigError", err)
	}
	if ce.Token != "BOGUS_TOKEN" {
		t.Errorf("ConfigError.Token = %q, want BOGUS_TOKEN", ce.Token)
	}
}

func TestLoadAppliesMultipleFilesInSequenceLaterOverridesEarlier(t *testing.T) {
	base := writeTempConfig(t, `
NUM_CHANNELS 1
NUM_RANKS 2
`)
	override := writeTempConfig(t, `NUM_CHANNELS 4`)

	p, err := Load(base, override)
	if err != nil {
		t.Fatal(err)
	}
	if p.NumChannels != 4 {
		t.Errorf("NumChannels = %d, want 4 (override should win)", p.NumChannels)
	}
	if p.NumRanks != 2 {
		t.Errorf("NumRanks = %d, want 2 (retained from base file)", p.NumRanks)
	}
}

func TestSchedulerPolicyTokenDefaultsEmpty(t *testing.T) {
	path := writeTempConfig(t, `NUM_CHANNELS 1`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.SchedulerPolicy != "" {
		t.Errorf("SchedulerPolicy = %q, want empty when absent", p.SchedulerPolicy)
	}
}

func TestSchedulerPolicyTokenParses(t *testing.T) {
	path := writeTempConfig(t, `SCHEDULER_POLICY frfcfs`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.SchedulerPolicy != "frfcfs" {
		t.Errorf("SchedulerPolicy = %q, want frfcfs", p.SchedulerPolicy)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.cfg")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestSupplementedTokensDefaultToZeroWhenAbsent(t *testing.T) {
	path := writeTempConfig(t, `NUM_CHANNELS 1`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.IDD1 != 0 || p.TCKE != 0 {
		t.Errorf("IDD1/TCKE = %v/%v, want 0/0 when not present in file", p.IDD1, p.TCKE)
	}
}

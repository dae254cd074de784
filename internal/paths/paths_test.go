package paths

import "testing"

func TestJoinWithinLimit(t *testing.T) {
	got, err := Join(LightDBState, "temp", MaxLen)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got != ".d/temp" {
		t.Fatalf("Join = %q, want %q", got, ".d/temp")
	}
}

func TestJoinExceedsLimit(t *testing.T) {
	suffix := make([]byte, MaxLen)
	for i := range suffix {
		suffix[i] = 'a'
	}
	_, err := Join(OTA, string(suffix), MaxLen)
	if err == nil {
		t.Fatal("Join should reject a path exceeding max length")
	}
}

func TestPrefixConstants(t *testing.T) {
	cases := map[string]string{
		LightDBState:  ".d/",
		LightDBStream: ".s/",
		Settings:      ".c/",
		RPC:           ".rpc/",
		OTA:           ".u/",
		Logging:       ".l/",
		Pouch:         ".pouch",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("prefix constant = %q, want %q", got, want)
		}
	}
}

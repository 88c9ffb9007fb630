package country

import "testing"

func TestResolveLongestPrefixWins(t *testing.T) {
	tests := []struct {
		phone string
		code  string
		name  string
	}{
		{"+442071234567", "GB", "United Kingdom"},
		{"+12425551234", "BS", "Bahamas"},
		{"+18765551234", "JM", "Jamaica"},
		{"+989121234567", "IR", "Iran"},
		{"+9715512345678", "AE", "United Arab Emirates"},
		{"+35699123456", "MT", "Malta"},
		{"+79161234567", "RU", "Russia"},
	}
	for _, tt := range tests {
		c, ok := Resolve(tt.phone)
		if !ok {
			t.Fatalf("Resolve(%s): expected hit", tt.phone)
		}
		if c.Code != tt.code || c.Name != tt.name {
			t.Fatalf("Resolve(%s) = %s/%s, want %s/%s", tt.phone, c.Code, c.Name, tt.code, tt.name)
		}
	}
}

func TestResolveNANPSplit(t *testing.T) {
	if c, ok := Resolve("+14165551234"); !ok || c.Code != "CA" {
		t.Fatalf("Toronto number resolved to %+v, want CA", c)
	}
	if c, ok := Resolve("+12125551234"); !ok || c.Code != "US" {
		t.Fatalf("Manhattan number resolved to %+v, want US", c)
	}
}

func TestResolveDeterministic(t *testing.T) {
	first, ok := Resolve("+442071234567")
	if !ok {
		t.Fatal("expected hit")
	}
	for i := 0; i < 100; i++ {
		c, ok := Resolve("+442071234567")
		if !ok || c != first {
			t.Fatalf("iteration %d: got %+v, want %+v", i, c, first)
		}
	}
}

func TestResolveMisses(t *testing.T) {
	for _, phone := range []string{"", "+", "442071234567", "+0001234", "+4420abc", "+999123456"} {
		if c, ok := Resolve(phone); ok {
			t.Fatalf("Resolve(%q) unexpectedly resolved to %+v", phone, c)
		}
	}
}

func TestValidFormat(t *testing.T) {
	valid := []string{"+442071234567", "+12425551234", "+98912345678"}
	for _, p := range valid {
		if !ValidFormat(p) {
			t.Fatalf("ValidFormat(%q) = false, want true", p)
		}
	}
	invalid := []string{"", "+", "+123", "442071234567", "+4420712345678901234", "+44 207 1234"}
	for _, p := range invalid {
		if ValidFormat(p) {
			t.Fatalf("ValidFormat(%q) = true, want false", p)
		}
	}
}

func TestFlagEmoji(t *testing.T) {
	if got := FlagEmoji("GB"); got != "🇬🇧" {
		t.Fatalf("FlagEmoji(GB) = %q", got)
	}
	if got := FlagEmoji(""); got != "🌍" {
		t.Fatalf("FlagEmoji(empty) = %q, want globe", got)
	}
	if got := FlagEmoji("g1"); got != "🌍" {
		t.Fatalf("FlagEmoji(g1) = %q, want globe", got)
	}
}

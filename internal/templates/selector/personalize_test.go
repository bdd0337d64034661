package selector

import "testing"

func TestPersonalizeSubstitutesTokens(t *testing.T) {
	content := "Hi {{first_name}}, still interested in {{location}} within {{budget}}?"
	attrs := map[string]string{
		"name":     "Tan Wei Ming",
		"location": "Tampines",
		"budget":   "$1.2M",
	}

	got := Personalize(content, attrs, nil)
	want := "Hi Tan, still interested in Tampines within $1.2M?"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPersonalizeStripsUnresolvedTokens(t *testing.T) {
	got := Personalize("Hi {{first_name}}, about {{property_type}}", nil, nil)
	want := "Hi , about "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPersonalizeExtrasWinOverAttrs(t *testing.T) {
	attrs := map[string]string{"location": "Bedok"}
	extras := map[string]string{"location": "Punggol"}

	got := Personalize("{{location}}", attrs, extras)
	if got != "Punggol" {
		t.Fatalf("got %q, want Punggol", got)
	}
}

func TestRenderPositional(t *testing.T) {
	got := RenderPositional("Hi {{1}}, your viewing at {{2}} is confirmed.", []string{"Alice", "Sky Residences"})
	want := "Hi Alice, your viewing at Sky Residences is confirmed."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderPositionalStripsLeftovers(t *testing.T) {
	got := RenderPositional("Hi {{1}}, see {{2}}.", []string{"Bob"})
	want := "Hi Bob, see ."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

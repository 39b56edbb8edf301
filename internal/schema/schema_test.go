package schema

import "testing"

const answerSchema = `{
  "type": "object",
  "required": ["answer"],
  "properties": {
    "answer": {"type": "string"}
  }
}`

func TestParseJSONPlain(t *testing.T) {
	raw, err := ParseJSON(`{"answer": "hi"}`)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"answer":"hi"}` {
		t.Fatalf("got %s", raw)
	}
}

func TestParseJSONStripsCodeFences(t *testing.T) {
	input := "```json\n{\"answer\": \"hi\"}\n```"
	raw, err := ParseJSON(input)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"answer":"hi"}` {
		t.Fatalf("got %s", raw)
	}
}

func TestParseJSONExtractsFromProse(t *testing.T) {
	input := "Sure, here you go: {\"answer\": \"hi\"} hope that helps"
	raw, err := ParseJSON(input)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"answer":"hi"}` {
		t.Fatalf("got %s", raw)
	}
}

func TestParseJSONEmptyErrors(t *testing.T) {
	if _, err := ParseJSON("   "); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestCompileAndValidate(t *testing.T) {
	s, err := Compile("answer.json", []byte(answerSchema))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := ParseJSON(`{"answer": "hi"}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(s, raw); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	s, err := Compile("answer2.json", []byte(answerSchema))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := ParseJSON(`{}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(s, raw); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

package generator

import "context"

// FakeGenerator is a deterministic Generator for tests: it returns a fixed
// response, or routes prompts through a custom function when set.
type FakeGenerator struct {
	Response string
	Respond  func(prompt string) string
	Fail     bool
	Calls    int
}

// Generate implements Generator.
func (f *FakeGenerator) Generate(_ context.Context, prompt string) (Result, error) {
	f.Calls++
	if f.Fail {
		return Result{Success: false, ErrorMessage: "fake generator configured to fail"}, errFakeFailure
	}
	content := f.Response
	if f.Respond != nil {
		content = f.Respond(prompt)
	}
	return Result{
		Provider: "fake",
		Model:    "fake-model",
		Content:  content,
		Success:  true,
		Attempts: 1,
	}, nil
}

var errFakeFailure = fakeError("fake generator configured to fail")

type fakeError string

func (e fakeError) Error() string { return string(e) }

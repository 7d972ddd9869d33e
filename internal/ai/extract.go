package ai

import "regexp"

// Models sometimes wrap the requested JSON in prose or code fences; pull out
// the outermost object instead of failing the whole call.
var jsonBlobRegex = regexp.MustCompile(`\{[\s\S]*\}`)

func extractJSONBlob(text string) ([]byte, bool) {
	blob := jsonBlobRegex.FindString(text)
	if blob == "" {
		return nil, false
	}
	return []byte(blob), true
}

package github

// extractPayload keeps the fields of an event payload that describe what
// happened. Unknown event types keep their raw payload.
func extractPayload(eventType string, raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}

	switch eventType {
	case "PushEvent":
		commits, _ := raw["commits"].([]any)
		return map[string]any{
			"commits": len(commits),
			"ref":     stringField(raw, "ref"),
			"head":    stringField(raw, "head"),
			"size":    raw["size"],
		}
	case "IssuesEvent":
		return map[string]any{
			"action": stringField(raw, "action"),
			"issue":  summarize(raw["issue"]),
		}
	case "PullRequestEvent":
		return map[string]any{
			"action":       stringField(raw, "action"),
			"pull_request": summarize(raw["pull_request"]),
		}
	case "CreateEvent":
		return map[string]any{
			"ref_type":    stringField(raw, "ref_type"),
			"ref":         stringField(raw, "ref"),
			"description": stringField(raw, "description"),
		}
	case "DeleteEvent":
		return map[string]any{
			"ref_type": stringField(raw, "ref_type"),
			"ref":      stringField(raw, "ref"),
		}
	case "WatchEvent":
		action := stringField(raw, "action")
		if action == "" {
			action = "started"
		}
		return map[string]any{"action": action}
	case "ForkEvent":
		forkee, _ := raw["forkee"].(map[string]any)
		return map[string]any{
			"forkee": map[string]any{
				"full_name": stringField(forkee, "full_name"),
				"url":       stringField(forkee, "html_url"),
			},
		}
	case "ReleaseEvent":
		release, _ := raw["release"].(map[string]any)
		return map[string]any{
			"action": stringField(raw, "action"),
			"release": map[string]any{
				"tag_name": stringField(release, "tag_name"),
				"name":     stringField(release, "name"),
				"url":      stringField(release, "html_url"),
			},
		}
	default:
		return raw
	}
}

// summarize reduces an issue or pull request object to its headline.
func summarize(v any) map[string]any {
	m, _ := v.(map[string]any)
	number := m["number"]
	if number == nil {
		number = 0
	}
	return map[string]any{
		"number": number,
		"title":  stringField(m, "title"),
		"state":  stringField(m, "state"),
		"url":    stringField(m, "html_url"),
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

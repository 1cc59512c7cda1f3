package version

const Value = "0.3.0"

// UserAgent is sent when the configuration does not provide one.
func UserAgent() string {
	return "elitecode-scraper/" + Value
}

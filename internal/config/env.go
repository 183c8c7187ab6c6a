package config

import (
	"strconv"
	"strings"
)

// lookupFunc matches os.LookupEnv so tests can inject an environment.
type lookupFunc func(string) (string, bool)

func envString(lookup lookupFunc, name, def string) string {
	v, ok := lookup(name)
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func envInt(lookup lookupFunc, name string, def int) int {
	v := envString(lookup, name, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envInt64(lookup lookupFunc, name string, def int64) int64 {
	v := envString(lookup, name, "")
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func envFloat(lookup lookupFunc, name string, def float64) float64 {
	v := envString(lookup, name, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// envBool treats "0", "false", "no" and "off" as false and any other
// non-empty value as true.
func envBool(lookup lookupFunc, name string, def bool) bool {
	v := strings.ToLower(envString(lookup, name, ""))
	switch v {
	case "":
		return def
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// envList splits a comma separated value, dropping empty items.
func envList(lookup lookupFunc, name string, def []string) []string {
	v := envString(lookup, name, "")
	if v == "" {
		return def
	}
	return splitList(v)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

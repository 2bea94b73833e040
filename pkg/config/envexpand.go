package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands {{.VAR}} references in config content from the process
// environment. Shell-style $VAR is left alone so prompt text and welcome
// messages can contain dollar signs.
//
// Missing variables expand to the empty string. Content that is not a valid
// template is returned unchanged and left for the YAML parser to judge.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}

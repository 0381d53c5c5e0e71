// Package ids generates prefixed identifiers such as tpl_1b4e28ba-2fa1-11d2-883f-0016d3cca427.
package ids

import "github.com/google/uuid"

const (
	TemplatePrefix = "tpl"
	VersionPrefix  = "ver"
)

func New(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func NewTemplateID() string { return New(TemplatePrefix) }

func NewVersionID() string { return New(VersionPrefix) }

package tools

import (
	"github.com/effective-security/toolagent/pkg/llmutils"
)

type toolDescription struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Origin      Origin `json:"origin" yaml:"origin"`
	Server      string `json:"server,omitempty" yaml:"server,omitempty"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"tools" yaml:"tools"`
}

func describe(list []*Descriptor) toolsDescription {
	d := toolsDescription{Tools: []toolDescription{}}
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name,
			Description: tool.Description,
			Origin:      tool.Origin,
			Server:      tool.Server,
		})
	}
	return d
}

// GetDescriptions returns YAML with names and descriptions of the tools.
func GetDescriptions(list ...*Descriptor) string {
	return llmutils.ToYAML(describe(list))
}

// GetDescriptionsJSON returns indented JSON with names and descriptions of the tools.
func GetDescriptionsJSON(list ...*Descriptor) string {
	return llmutils.ToJSONIndent(describe(list))
}

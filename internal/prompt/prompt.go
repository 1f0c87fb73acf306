// Package prompt builds the README request sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/steveyegge/autoreadme/internal/scan"
)

// Notes appended when file blocks had to be dropped.
const (
	NoteNoFiles      = "\n\nNo file contents were included in the prompt due to size limitations or no relevant files being found."
	NoteSomeSkipped  = "\n\n... (some file contents were skipped due to total prompt length limitations)"
	DefaultMaxChars  = 30000
	instructionsHead = `Please analyze the following project files and generate a comprehensive README.md file.
The README should be in Markdown format with inline HTML for interactive elements.

Required sections:
1. Project Overview - A clear description of what the project does
2. Features - List of main features and capabilities
3. Installation - How to install and set up the project
4. Usage - How to use the project with examples
5. Example Code Snippets - If applicable, show some code examples
6. License - Include license information if available

Use HTML elements like <details> for collapsible sections to make it interactive.
Make the README professional, well-structured, and easy to understand.
Respond with the README content only, without wrapping it in a code fence.
`
)

// Limits bounds the prompt size.
type Limits struct {
	// MaxChars caps the full prompt, instructions included
	MaxChars int
}

// Prompt is the built request plus bookkeeping about what made it in.
type Prompt struct {
	Text string

	// Included lists the files whose blocks are in Text, in order
	Included []string

	// Dropped lists files left out because the budget ran out
	Dropped []string
}

// Build assembles the prompt for folderName from files (already sorted and
// truncated by scan.ReadFolderContents). File blocks are appended in order
// until the next one would push the prompt past limits.MaxChars; every file
// after that is dropped and a note says so.
func Build(folderName string, files []scan.File, project *scan.ProjectInfo, limits Limits) Prompt {
	maxChars := limits.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var b strings.Builder
	b.WriteString(instructionsHead)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Project folder: %s\n", folderName)
	writeProjectHints(&b, project)
	b.WriteString("\nProject files:\n")

	// Reserve room for whichever note may follow
	budget := maxChars - len(NoteNoFiles)

	p := Prompt{}
	for i, f := range files {
		block := fileBlock(f)
		if b.Len()+len(block) > budget {
			for _, rest := range files[i:] {
				p.Dropped = append(p.Dropped, rest.RelPath)
			}
			break
		}
		b.WriteString(block)
		p.Included = append(p.Included, f.RelPath)
	}

	switch {
	case len(p.Included) == 0:
		b.WriteString(NoteNoFiles)
	case len(p.Dropped) > 0:
		b.WriteString(NoteSomeSkipped)
	}

	p.Text = b.String()
	return p
}

func fileBlock(f scan.File) string {
	return fmt.Sprintf("\n\nFile: %s\nContent:\n%s\n", f.RelPath, f.Content)
}

func writeProjectHints(b *strings.Builder, project *scan.ProjectInfo) {
	if project == nil {
		return
	}
	fmt.Fprintf(b, "Project type: %s\n", project.Kind)
	if project.Name != "" {
		fmt.Fprintf(b, "Project name: %s\n", project.Name)
	}
	for _, d := range project.Details {
		fmt.Fprintf(b, "- %s\n", d)
	}
}

// CleanResponse strips a single surrounding ```markdown fence some models add
// despite being asked not to.
func CleanResponse(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return ensureNewline(text)
	}

	firstNL := strings.IndexByte(trimmed, '\n')
	if firstNL < 0 {
		return ensureNewline(text)
	}
	header := strings.TrimSpace(strings.TrimPrefix(trimmed[:firstNL], "```"))
	if header != "" && header != "markdown" && header != "md" {
		return ensureNewline(text)
	}

	body := strings.TrimSuffix(trimmed[firstNL+1:], "```")
	return ensureNewline(strings.TrimRight(body, " \t\n"))
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

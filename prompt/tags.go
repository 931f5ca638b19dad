package prompt

import (
	"regexp"
	"strings"
)

// Block is one outermost tag-delimited region of text.
type Block struct {
	Tag     string
	Content string
}

// String renders the block back in its delimited form.
func (b Block) String() string {
	return "<" + b.Tag + ">" + b.Content + "</" + b.Tag + ">"
}

// tagToken matches one opening or closing tag. Group 1 is "/" for closing
// tags, group 2 is the tag name. Attributes after the name are tolerated in
// the lexer but the name itself must be word characters.
var tagToken = regexp.MustCompile(`<(/?)(\w+)(?:\s+[^>]*)?>`)

// ParseAll extracts every outermost tag-delimited block from text.
//
// Matching tracks a depth per tag name with a stack: an opening tag pushes,
// a closing tag of the same name as the top of the stack pops, and a block
// is emitted when a pop empties the stack. Nested tags, including nested
// tags of the same name, are kept verbatim inside the outermost block's
// content. Unterminated opening tags yield no block. Blocks are returned in
// left-to-right order of their closing tags.
func ParseAll(text string) []Block {
	type open struct {
		tag   string
		start int // index of '<' in the opening tag
	}

	var blocks []Block
	var stack []open

	for _, loc := range tagToken.FindAllStringSubmatchIndex(text, -1) {
		closing := loc[3] > loc[2] // group 1 non-empty
		name := text[loc[4]:loc[5]]

		if !closing {
			stack = append(stack, open{tag: name, start: loc[0]})
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1].tag != name {
			continue
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			contentStart := strings.IndexByte(text[top.start:], '>') + top.start + 1
			blocks = append(blocks, Block{Tag: top.tag, Content: text[contentStart:loc[0]]})
		}
	}

	return blocks
}

// ParseTag returns the content of every outermost block with the given tag.
func ParseTag(text, tag string) []string {
	var contents []string
	for _, block := range ParseAll(text) {
		if block.Tag == tag {
			contents = append(contents, block.Content)
		}
	}
	return contents
}

// LastTag returns the content of the last outermost block with the given
// tag, or the empty string when no such block exists.
func LastTag(text, tag string) string {
	contents := ParseTag(text, tag)
	if len(contents) == 0 {
		return ""
	}
	return contents[len(contents)-1]
}

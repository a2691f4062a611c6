package controls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ErrDocumentNotFound reports a missing network description document.
var ErrDocumentNotFound = errors.New("controls: document not found")

// linePattern matches the supported subset of [CONTROLS] lines:
//
//	LINK <link_id> OPEN|CLOSED IF NODE <node_id> BELOW|ABOVE <threshold> [PRIORITY <int>]
//
// Keywords are case-insensitive. Anything else is deliberately ignored,
// so lenient upstream documents keep working.
var linePattern = regexp.MustCompile(
	`(?i)^LINK\s+(\S+)\s+(OPEN|CLOSED)\s+IF\s+NODE\s+(\S+)\s+(BELOW|ABOVE)\s+([0-9eE.+-]+)(?:\s+PRIORITY\s+([0-9]+))?`,
)

// ParseControls extracts control rules from the [CONTROLS] section of an
// INP document. Lines outside the section, comment lines (";" prefix),
// blank lines and lines that do not match the supported grammar are
// skipped without error. RuleIndex counts matched lines in document order.
func ParseControls(path string) ([]ControlRule, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, err
	}
	defer f.Close()
	return parseControls(f)
}

func parseControls(r io.Reader) ([]ControlRule, error) {
	var rules []ControlRule
	inSection := false
	ruleIndex := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(line), "[CONTROLS]") {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(line, "[") {
			// Next section terminates the scan.
			break
		}
		if !inSection {
			continue
		}

		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		threshold, err := strconv.ParseFloat(m[5], 64)
		if err != nil {
			continue
		}
		priority := 0
		if m[6] != "" {
			priority, err = strconv.Atoi(m[6])
			if err != nil {
				continue
			}
		}
		rules = append(rules, ControlRule{
			LinkID:     m[1],
			NodeID:     m[3],
			Comparator: Comparator(strings.ToUpper(m[4])),
			Action:     Action(strings.ToUpper(m[2])),
			Threshold:  threshold,
			Priority:   priority,
			RuleIndex:  ruleIndex,
		})
		ruleIndex++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// logfmt renders qmanagerd's JSON log stream into a human-readable form.
// Pipe the daemon's stdout through it during development:
//
//	qmanagerd | logfmt -level info
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

var (
	service string
	level   string
)

func init() {
	flag.StringVar(&service, "service", "", "filter which service to see")
	flag.StringVar(&level, "level", "", "only show entries at this level")
}

func main() {
	flag.Parse()
	var b strings.Builder

	// Scan standard input for log data per line.
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024*1024)
	for scanner.Scan() {
		s := scanner.Text()

		// Convert the JSON to a map for processing. Non-JSON lines (e.g.
		// child job output leaking onto stderr) pass through untouched
		// unless a filter is active.
		m := make(map[string]any)
		err := json.Unmarshal([]byte(s), &m)
		if err != nil {
			if service == "" && level == "" {
				fmt.Println(s)
			}
			continue
		}

		if service != "" && m["service"] != service {
			continue
		}
		if level != "" && m["level"] != level {
			continue
		}

		// Build out the known portions of the log in the order
		// I want them in.
		b.Reset()
		b.WriteString(fmt.Sprintf("--------------------------------------------------\n%s: %s: %s: %s: %s: ",
			m["service"],
			m["ts"],
			m["level"],
			m["caller"],
			m["msg"],
		))

		// Add the rest of the keys ignoring the ones we already
		// added for the log. jobID sorts first so queue activity is easy
		// to follow.
		var customFields []string
		for k, v := range m {
			switch k {
			case "service", "ts", "level", "caller", "msg":
				continue
			}
			customFields = append(customFields, fmt.Sprintf("%s[%v]: ", k, v))
		}
		sort.Slice(customFields, func(i, j int) bool {
			ii := strings.HasPrefix(customFields[i], "jobID[")
			jj := strings.HasPrefix(customFields[j], "jobID[")
			if ii != jj {
				return ii
			}
			return customFields[i] < customFields[j]
		})
		b.WriteString(strings.Join(customFields, ""))

		// Write the new log format, removing the last :
		out := b.String()
		fmt.Println(out[:len(out)-2])
	}

	if err := scanner.Err(); err != nil {
		log.Println(err)
	}
}

package removal

import "sort"

func sortFiles(files []FileReport) {
	sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// RewrittenFiles returns the distinct paths replaced during the run.
func (r *Report) RewrittenFiles() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ir := range r.Identifiers {
		for _, f := range ir.Files {
			if f.Rewritten && !seen[f.Path] {
				seen[f.Path] = true
				out = append(out, f.Path)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Command hql evaluates HQL pipeline expressions against HTML documents.
//
// Usage:
//
//	hql --hql '@path(`//div/a`) | #attr(`href`)' -f page.html
//	hql --hql '@id(`main`) | #text() | #trim()' '<div id="main"> hi </div>'
//	curl -s https://example.com | hql --hql '@path(`/html/head/title`) | #text()'
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/hql-lang/hql/cobraext"
)

var errorStyle = color.New(color.FgRed, color.Bold)

func main() {
	if err := cobraext.RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Sprint("error:"), err)
		os.Exit(1)
	}
}

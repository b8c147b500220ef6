package modules

import (
	"text/template"

	pool "github.com/libp2p/go-buffer-pool"
)

// the opening of the wrapper stays on the first line of the module so that
// line numbers in stack traces match the module source
const wrapper = `(function({{.Exports}}, {{.Loader}}) {{"{"}}{{.Body}}
})`

var wrapperTemplate = template.Must(template.New("module").Parse(wrapper))

type wrapperScope struct {
	Exports string
	Loader  string
	Body    string
}

func wrapModule(exportsSymbol, loaderSymbol, body string) (string, error) {
	b := pool.NewBuffer(nil)
	defer b.Reset()

	if err := wrapperTemplate.Execute(b, wrapperScope{
		Exports: exportsSymbol,
		Loader:  loaderSymbol,
		Body:    body,
	}); err != nil {
		return "", err
	}

	return b.String(), nil
}

package sources

var sourceBacking = []matched{}

type matched struct {
	matcher     Matcher
	constructor Constructor
}

type Constructor func(uri string) (Source, error)

type Matcher func(uri string) bool

func Register(constructor Constructor, matcher Matcher) {
	sourceBacking = append(sourceBacking, matched{
		constructor: constructor,
		matcher:     matcher,
	})
}

// Open returns the source of the first registered backing matching uri.
func Open(uri string) (Source, error) {
	for _, s := range sourceBacking {
		if !s.matcher(uri) {
			continue
		}
		return s.constructor(uri)
	}

	return nil, ErrBackingNotFound
}

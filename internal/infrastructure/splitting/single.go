// Package splitting holds Splitter adapters. The boundary-detecting vision
// engine lives outside this repo; Single is the neutral default behind the
// port.
package splitting

import "context"

// Single never splits: an empty scan result makes the pipeline treat the
// whole file as the one part.
type Single struct{}

func NewSingle() Single {
	return Single{}
}

func (Single) Scan(context.Context, string) ([]string, error) {
	return nil, nil
}

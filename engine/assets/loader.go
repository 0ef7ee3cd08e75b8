package assets

import "github.com/spaghettifunk/framecore/engine/assets/loaders"

type Loader interface {
	Load(path string, params interface{}) (*loaders.Resource, error) // `interface{}` here allows loaders to take loader specific parameters
	Unload(*loaders.Resource) error
}

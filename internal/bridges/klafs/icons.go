package klafs

import _ "embed"

// Device icons served as deviceIcon16 and deviceIcon48.
var (
	//go:embed icons/klafs-sauna-16.png
	icon16 []byte

	//go:embed icons/klafs-sauna-48.png
	icon48 []byte
)

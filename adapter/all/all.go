// Package all registers every adapter shipped with docuflow. Import it for
// its side effects when the adapter set is chosen at runtime from
// configuration:
//
//	import _ "github.com/docuflow/docuflow/adapter/all"
package all

import (
	_ "github.com/docuflow/docuflow/adapter/adobesign"
	_ "github.com/docuflow/docuflow/adapter/docusign"
	_ "github.com/docuflow/docuflow/adapter/fsstore"
	_ "github.com/docuflow/docuflow/adapter/s3"
)

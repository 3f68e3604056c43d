// Package all registers every status bus shipped with docuflow. Import it for
// its side effects when the bus is chosen at runtime from configuration:
//
//	import _ "github.com/docuflow/docuflow/statusbus/all"
package all

import (
	_ "github.com/docuflow/docuflow/statusbus/channel"
	_ "github.com/docuflow/docuflow/statusbus/http"
	_ "github.com/docuflow/docuflow/statusbus/kafka"
	_ "github.com/docuflow/docuflow/statusbus/nats"
	_ "github.com/docuflow/docuflow/statusbus/rabbitmq"
)

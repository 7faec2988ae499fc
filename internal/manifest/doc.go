/*
Package manifest describes the job tree fiberd builds at boot.

A manifest is TOML. Jobs nest, carry basic policies and list the processes
started in them. A process names the program it runs and may connect to
another process by name, in which case the two are joined by a channel.

	[[job]]
	name = "services"

	  [[job.policy]]
	  condition = "new_process"
	  action = "deny"

	  [[job.process]]
	  name = "echo"
	  program = "echo"

	  [[job.process]]
	  name = "client"
	  program = "client"
	  args = ["3"]
	  connect = "echo"
*/
package manifest

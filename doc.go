/*
Package labexam drives hands-on lab exams against a remote grading backend.

A run is an ordered selection of tasks taken from the backend catalog, either
hand-picked (practice), a whole category, the full catalog (quick practice)
or a random draw (exam, timed). The run lives in memory and is mirrored to a
pluggable session store after every change, so an interrupted run can be
resumed later. Submitting a run reboots both lab nodes, grades every task
concurrently, reports the aggregate to the backend and closes the run.

# Usage

	api := labapi.New("http://localhost:8080")
	wb := labexam.New(api, file.New(""))

	if err := wb.StartExam(ctx, 0); err != nil {
		var notReady *labexam.NotReadyError
		if errors.As(err, &notReady) {
			fmt.Println(notReady.Result.Message())
		}
		return err
	}

	token := grading.NewToken()
	outcome, err := wb.Submit(ctx, token)

The Workbench is shared by the command-line client, the local control API
(pkg/adapters/http) and the MCP server (pkg/adapters/mcp).
*/
package labexam

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePatch = `diff --git a/app/util.py b/app/util.py
index 1111111..2222222 100644
--- a/app/util.py
+++ b/app/util.py
@@ -1,2 +1,2 @@
 def tidy():
-    return 0
+    return 1
diff --git a/app/service.py b/app/service.py
index 3333333..4444444 100644
--- a/app/service.py
+++ b/app/service.py
@@ -30,1 +30,1 @@
-x = 1
+x = 2
`

func TestParsePatch(t *testing.T) {
	scope, err := ParsePatch(strings.NewReader(fixturePatch))
	require.NoError(t, err)

	assert.True(t, scope.Touches("app/util.py"))
	assert.True(t, scope.Touches("app/service.py"))
	assert.False(t, scope.Touches("app/jobs.py"))

	assert.True(t, scope.TouchesLine("app/util.py", 1))
	assert.True(t, scope.TouchesLine("app/util.py", 2))
	assert.False(t, scope.TouchesLine("app/util.py", 3))
	assert.True(t, scope.TouchesLine("app/service.py", 30))
	assert.False(t, scope.TouchesLine("app/service.py", 1))
}

func TestFilterByPatch(t *testing.T) {
	all := analyze(t, fixture())
	scope, err := ParsePatch(strings.NewReader(fixturePatch))
	require.NoError(t, err)

	byFile := FilterByPatch(all, scope, false)
	for _, x := range byFile.Findings {
		assert.Contains(t, []string{"app/util.py", "app/service.py"}, x.File)
	}
	assert.Equal(t, all.Counts[CategoryLonelyAbstraction], byFile.Counts[CategoryLonelyAbstraction])
	assert.Equal(t, len(all.Findings)-1, len(byFile.Findings), "only the app/jobs.py finding is dropped")

	byHunk := FilterByPatch(all, scope, true)
	require.Len(t, byHunk.Findings, 1)
	assert.Equal(t, "app/util.py:1:tidy", byHunk.Findings[0].Symbols[0])

	assert.Len(t, all.Findings, 9, "filtering does not modify its input")
}

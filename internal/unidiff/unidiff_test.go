package unidiff

import "testing"

const samplePatch = `diff --git a/main.go b/main.go
index 1111111..2222222 100644
--- a/main.go
+++ b/main.go
@@ -1,5 +1,6 @@
 package main

-func main() {}
+func main() {
+	run()
+}
diff --git a/run.go b/run.go
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/run.go
@@ -0,0 +1,3 @@
+package main
+
+func run() {}
diff --git a/old.go b/old.go
deleted file mode 100644
index 4444444..0000000
--- a/old.go
+++ /dev/null
@@ -1,2 +0,0 @@
-package main
-// gone
`

func TestParseSampleCounts(t *testing.T) {
	files := Parse(samplePatch)
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}

	mod := files[0]
	if mod.Path != "main.go" || mod.ChangeType != Modified {
		t.Errorf("file 0 = %s/%s, want main.go/modified", mod.Path, mod.ChangeType)
	}
	if mod.Additions != 3 || mod.Deletions != 1 {
		t.Errorf("main.go +%d -%d, want +3 -1", mod.Additions, mod.Deletions)
	}
	if mod.Content != "func main() {\n\trun()\n}" {
		t.Errorf("main.go content = %q", mod.Content)
	}

	created := files[1]
	if created.Path != "run.go" || created.ChangeType != Created {
		t.Errorf("file 1 = %s/%s, want run.go/created", created.Path, created.ChangeType)
	}
	if created.Additions != 3 || created.Deletions != 0 {
		t.Errorf("run.go +%d -%d, want +3 -0", created.Additions, created.Deletions)
	}
	if created.Content != "package main\n\nfunc run() {}" {
		t.Errorf("run.go content = %q", created.Content)
	}

	deleted := files[2]
	if deleted.Path != "old.go" || deleted.ChangeType != Deleted {
		t.Errorf("file 2 = %s/%s, want old.go/deleted", deleted.Path, deleted.ChangeType)
	}
	if deleted.Additions != 0 || deleted.Deletions != 2 {
		t.Errorf("old.go +%d -%d, want +0 -2", deleted.Additions, deleted.Deletions)
	}
	if deleted.Content != "" {
		t.Errorf("deleted content should be empty, got %q", deleted.Content)
	}
}

func TestParseEmptyAndGarbage(t *testing.T) {
	if files := Parse(""); files != nil {
		t.Errorf("empty patch: expected nil, got %v", files)
	}
	if files := Parse("not a diff at all\njust text\n"); files != nil {
		t.Errorf("garbage: expected nil, got %v", files)
	}
}

func TestParseSkipsPathlessSection(t *testing.T) {
	patch := "diff --git \n@@ -1 +1 @@\n+x\ndiff --git a/ok.go b/ok.go\n--- a/ok.go\n+++ b/ok.go\n@@ -1 +1 @@\n-a\n+b\n"
	files := Parse(patch)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Path != "ok.go" {
		t.Errorf("path = %q, want ok.go", files[0].Path)
	}
}

func TestParseMultipleHunks(t *testing.T) {
	patch := `diff --git a/x.go b/x.go
--- a/x.go
+++ b/x.go
@@ -1,2 +1,2 @@
-one
+uno
@@ -10,2 +10,3 @@
 ctx
+dos
+tres
`
	files := Parse(patch)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Additions != 3 || files[0].Deletions != 1 {
		t.Errorf("+%d -%d, want +3 -1", files[0].Additions, files[0].Deletions)
	}
	if files[0].Content != "uno\ndos\ntres" {
		t.Errorf("content = %q", files[0].Content)
	}
}

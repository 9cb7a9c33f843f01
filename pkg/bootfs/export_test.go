package bootfs

func MockMount(mount func(source, target, fsType string) error, unmount func(target string) error) (restore func()) {
	savedMount, savedUnmount := mountFn, unmountFn
	mountFn, unmountFn = mount, unmount
	return func() {
		mountFn, unmountFn = savedMount, savedUnmount
	}
}
